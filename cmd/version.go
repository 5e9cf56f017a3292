package cmd

// Version is set at build time:
// go build -ldflags "-X github.com/carservice/autotest/cmd.Version=1.2.0"
var Version = "dev"
