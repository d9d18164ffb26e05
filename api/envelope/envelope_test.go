package envelope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testID struct {
	ID int64 `json:"id"`
}

type testWrapper struct {
	Id *testID `json:"Id"`
}

func classify(t *testing.T, body string, sink *MemorySink) (*Payload, error) {
	t.Helper()
	env, err := Parse([]byte(body), sink)
	require.NoError(t, err)
	return env.Classify()
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "valid object", body: `{"Response":[]}`},
		{name: "truncated", body: `{"Response":[`, wantErr: ErrMalformedJSON},
		{name: "empty", body: ``, wantErr: ErrMalformedJSON},
		{name: "top-level array", body: `[1,2]`, wantErr: ErrShapeMismatch},
		{name: "null", body: `null`, wantErr: ErrShapeMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &MemorySink{}
			_, err := Parse([]byte(tc.body), sink)
			if tc.wantErr == nil {
				require.NoError(t, err)
				assert.Empty(t, sink.Captures())
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
			require.Len(t, sink.Captures(), 1)
			assert.Equal(t, tc.body, string(sink.Captures()[0].Body))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("error wins over response", func(t *testing.T) {
		body := `{"Response":[{"Id":{"id":1}}],"Error":[{"error_description":"Insufficient authorisation.","error_description_translated":"Onvoldoende autorisatie."}]}`
		_, err := classify(t, body, nil)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		require.Len(t, apiErr.Descriptions, 1)
		assert.Equal(t, "Insufficient authorisation.", apiErr.Descriptions[0].Description)
		assert.Equal(t, "Onvoldoende autorisatie.", apiErr.Descriptions[0].TranslatedDescription)
	})

	t.Run("status code carried into api error", func(t *testing.T) {
		env, err := Parse([]byte(`{"Error":[]}`), nil)
		require.NoError(t, err)
		env.StatusCode = 401
		_, err = env.Classify()

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 401, apiErr.StatusCode)
	})

	t.Run("error list with wrong shape", func(t *testing.T) {
		_, err := classify(t, `{"Error":"boom"}`, nil)
		require.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("neither key", func(t *testing.T) {
		_, err := classify(t, `{"Something":[]}`, nil)
		require.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("response not an array", func(t *testing.T) {
		for _, body := range []string{`{"Response":{}}`, `{"Response":null}`, `{"Response":"x"}`} {
			_, err := classify(t, body, nil)
			require.ErrorIs(t, err, ErrShapeMismatch, body)
		}
	})
}

func TestDecodeSingle(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		want    int64
		wantErr bool
	}{
		{name: "exactly one", body: `{"Response":[{"Id":{"id":7}}]}`, want: 7},
		{name: "zero elements", body: `{"Response":[]}`, wantErr: true},
		{name: "two elements", body: `{"Response":[{"Id":{"id":7}},{"Id":{"id":8}}]}`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sink := &MemorySink{}
			payload, err := classify(t, tc.body, sink)
			require.NoError(t, err)

			var got testWrapper
			require.NotPanics(t, func() {
				got, err = DecodeSingle[testWrapper](payload)
			})

			if tc.wantErr {
				require.ErrorIs(t, err, ErrShapeMismatch)
				assert.Nil(t, got.Id, "must not pick an element")
				assert.Len(t, sink.Captures(), 1)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, got.Id)
			assert.Equal(t, tc.want, got.Id.ID)
		})
	}
}

func TestDecodeSingle_ReportsPath(t *testing.T) {
	payload, err := classify(t, `{"Response":[{"Id":{"id":"not-a-number"}}]}`, nil)
	require.NoError(t, err)

	_, err = DecodeSingle[testWrapper](payload)
	var shapeErr *ShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, "Response[0].Id.id", shapeErr.Path)
}

func TestDecodeMultiple(t *testing.T) {
	t.Run("list with pagination", func(t *testing.T) {
		body := `{"Response":[{"Id":{"id":1}},{"Id":{"id":2}}],"Pagination":{"future_url":null,"newer_url":"/v1/x?newer_id=2","older_url":null}}`
		payload, err := classify(t, body, nil)
		require.NoError(t, err)

		items, pagination, err := DecodeMultiple[testWrapper](payload)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, int64(2), items[1].Id.ID)
		require.NotNil(t, pagination.NewerURL)
		assert.Equal(t, "/v1/x?newer_id=2", *pagination.NewerURL)
		assert.Nil(t, pagination.OlderURL)
		assert.Nil(t, pagination.FutureURL)
	})

	t.Run("empty list", func(t *testing.T) {
		payload, err := classify(t, `{"Response":[],"Pagination":{}}`, nil)
		require.NoError(t, err)

		items, _, err := DecodeMultiple[testWrapper](payload)
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("missing pagination", func(t *testing.T) {
		payload, err := classify(t, `{"Response":[{"Id":{"id":1}}]}`, nil)
		require.NoError(t, err)

		_, _, err = DecodeMultiple[testWrapper](payload)
		require.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("null pagination", func(t *testing.T) {
		payload, err := classify(t, `{"Response":[],"Pagination":null}`, nil)
		require.NoError(t, err)

		_, _, err = DecodeMultiple[testWrapper](payload)
		require.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("bad element reports index", func(t *testing.T) {
		payload, err := classify(t, `{"Response":[{"Id":{"id":1}},{"Id":{"id":true}}],"Pagination":{}}`, nil)
		require.NoError(t, err)

		_, _, err = DecodeMultiple[testWrapper](payload)
		var shapeErr *ShapeError
		require.True(t, errors.As(err, &shapeErr))
		assert.Equal(t, "Response[1].Id.id", shapeErr.Path)
	})
}

func TestDecodePositional(t *testing.T) {
	type token struct {
		Token string `json:"token"`
	}
	type serverKey struct {
		ServerPublicKey string `json:"server_public_key"`
	}

	body := `{"Response":[{"Id":{"id":11}},{"Token":{"id":12,"token":"tok"}},{"ServerPublicKey":{"server_public_key":"PEM"}}]}`

	t.Run("unpacks by key", func(t *testing.T) {
		payload, err := classify(t, body, nil)
		require.NoError(t, err)

		var (
			id  testID
			tok token
			key serverKey
		)
		err = DecodePositional(payload, Key("Id", &id), Key("Token", &tok), Key("ServerPublicKey", &key))
		require.NoError(t, err)
		assert.Equal(t, int64(11), id.ID)
		assert.Equal(t, "tok", tok.Token)
		assert.Equal(t, "PEM", key.ServerPublicKey)
	})

	t.Run("whole element", func(t *testing.T) {
		payload, err := classify(t, body, nil)
		require.NoError(t, err)

		var wrapper testWrapper
		require.NoError(t, DecodePositional(payload, Whole(&wrapper)))
		assert.Equal(t, int64(11), wrapper.Id.ID)
	})

	t.Run("too few elements", func(t *testing.T) {
		payload, err := classify(t, `{"Response":[{"Id":{"id":11}}]}`, nil)
		require.NoError(t, err)

		var id testID
		var tok token
		err = DecodePositional(payload, Key("Id", &id), Key("Token", &tok))
		require.ErrorIs(t, err, ErrShapeMismatch)
	})

	t.Run("key in wrong position", func(t *testing.T) {
		payload, err := classify(t, body, nil)
		require.NoError(t, err)

		var tok token
		err = DecodePositional(payload, Key("Token", &tok))
		var shapeErr *ShapeError
		require.True(t, errors.As(err, &shapeErr))
		assert.Equal(t, "Response[0].Token", shapeErr.Path)
	})
}
