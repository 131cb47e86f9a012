package version

// Set at build time via
//
//	-ldflags "-X github.com/ingla/pram/version.Version=... -X github.com/ingla/pram/version.Date=..."
var (
	Version = "dev"
	Date    = ""
)
