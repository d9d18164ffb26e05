package credentials

import "crypto/rsa"

// Stage orders the credential shapes from nothing to a live session.
type Stage int

const (
	StageUninitialized Stage = iota
	StageInitialized
	StageInstalled
	StageRegistered
	StageUncheckedSession
	StageSession
)

func (s Stage) String() string {
	switch s {
	case StageUninitialized:
		return "uninitialized"
	case StageInitialized:
		return "initialized"
	case StageInstalled:
		return "installed"
	case StageRegistered:
		return "registered"
	case StageUncheckedSession:
		return "unchecked-session"
	case StageSession:
		return "session"
	default:
		return "unknown"
	}
}

// Credential is one of Uninitialized, Initialized, Installed, Registered,
// UncheckedSession or Session. Each shape carries exactly the fields valid at
// its stage; transitions consume one shape and return the next.
type Credential interface {
	Stage() Stage
	credential()
}

// Uninitialized holds nothing. The only way forward is generating a key.
type Uninitialized struct{}

// Initialized holds a device key that has not been shown to the server.
type Initialized struct {
	PrivateKey *rsa.PrivateKey
}

// Installed holds a device key acknowledged by the server together with the
// installation token and the key the server signs responses with.
type Installed struct {
	Initialized

	InstallationToken string
	ServerPublicKey   *rsa.PublicKey
}

// Registered holds an installation bound to an account-level API secret.
type Registered struct {
	Installed

	APISecret string
	DeviceID  int64
}

// UncheckedSession carries the fields of a Session whose validity is unknown,
// typically because it was loaded from storage.
type UncheckedSession struct {
	Registered

	SessionToken string
	OwnerID      int64
}

// Session is a live session usable for business calls.
type Session struct {
	Registered

	SessionToken string
	OwnerID      int64
}

func (Uninitialized) Stage() Stage    { return StageUninitialized }
func (Initialized) Stage() Stage      { return StageInitialized }
func (Installed) Stage() Stage        { return StageInstalled }
func (Registered) Stage() Stage       { return StageRegistered }
func (UncheckedSession) Stage() Stage { return StageUncheckedSession }
func (Session) Stage() Stage          { return StageSession }

func (Uninitialized) credential()    {}
func (Initialized) credential()      {}
func (Installed) credential()        {}
func (Registered) credential()       {}
func (UncheckedSession) credential() {}
func (Session) credential()          {}

// Unchecked forgets that a session was verified.
func (s Session) Unchecked() UncheckedSession {
	return UncheckedSession{Registered: s.Registered, SessionToken: s.SessionToken, OwnerID: s.OwnerID}
}

// Degrade drops the fields of the current stage and returns the previous one.
// Both session shapes degrade to Registered. Uninitialized has no earlier
// stage; ok is false in that case.
func Degrade(c Credential) (prev Credential, ok bool) {
	switch c := c.(type) {
	case Initialized:
		return Uninitialized{}, true
	case Installed:
		return c.Initialized, true
	case Registered:
		return c.Installed, true
	case UncheckedSession:
		return c.Registered, true
	case Session:
		return c.Registered, true
	default:
		return Uninitialized{}, false
	}
}
