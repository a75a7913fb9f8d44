// Package cmd defines the kong command tree.
package cmd

// LogOptions is the shared logging configuration.
type LogOptions struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"PADFORGE_LOG_LEVEL"`
	File    string `help:"Also write logs to this file (console output then goes to stderr)" env:"PADFORGE_LOG_FILE"`
	RawFile string `help:"Dump raw USB/IP traffic to this file" env:"PADFORGE_LOG_RAW_FILE"`
}

// CLI is the root command structure parsed by kong.
type CLI struct {
	Log LogOptions `embed:"" prefix:"log."`

	Run     Run           `cmd:"" default:"withargs" help:"Run the input translation engine"`
	Devices Devices       `cmd:"" help:"Enumerate visible input devices once and print them"`
	Config  ConfigCommand `cmd:"" help:"Configuration file helpers"`
}
