package app

// Version is reported by the control server and the startup log. Release
// builds set it with -ldflags "-X github.com/small-frappuccino/quickvids/pkg/app.Version=v1.2.3".
var Version = "dev"
