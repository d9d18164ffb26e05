/*
Package httpserver hosts application routes behind a chi router with the
operational endpoints every deployment needs.

Routes are supplied by a RouteRegistrar (for example sandbox.Bank) and are
wrapped with request logging from flashbots/go-utils/httplogger and
Prometheus request metrics. The server additionally serves:

  - /livez - liveness check, always 200
  - /readyz - readiness check, 503 while draining
  - /drain and /undrain - toggle readiness ahead of a rolling restart
  - /debug/pprof/* - profiling, when EnablePprof is set

Metrics are exposed on MetricsAddr under /metrics when it is non-empty.
Shutdown drains first: /readyz fails for DrainDuration while requests are
still served.

	srv, err := httpserver.New(&httpserver.HTTPServerConfig{
		ListenAddr:               "127.0.0.1:8080",
		MetricsAddr:              "127.0.0.1:8090",
		Log:                      log,
		DrainDuration:            45 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
	}, bank)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Shutdown(context.Background())
*/
package httpserver
