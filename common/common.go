package common

var (
	// Version is set at build time with -ldflags "-X ...common.Version=v1.2.3".
	Version = "dev"

	// PackageName is used as the metrics namespace and the default log service name.
	PackageName = "bank-session-client"
)
