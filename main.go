package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile  string
	InitConfig  string
	LoadOnly    bool
	SubmitFile  string
	PreviewFile string
	PointsFile  string
	HttpMode    bool
	HttpPort    int
	MqttMode    bool
}

// Runner is the set of modes main can dispatch to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunInitConfig(path string) error
	RunLoadOnly() error
	RunSubmit(pointsFile string) error
	RunPreview(outputFile string) error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("routedraw", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.InitConfig, "init-config", "", "Write a starter configuration to this path and exit")
	fs.BoolVar(&opts.LoadOnly, "load-only", false, "Load the reference layer, print a summary and exit")
	fs.StringVar(&opts.SubmitFile, "submit", "", "Submit the route in this JSON file ([[lng,lat],...]) as a new feature and exit")
	fs.StringVar(&opts.PreviewFile, "preview", "", "Render reference layer (and --points) to this .svg or .png file and exit")
	fs.StringVar(&opts.PointsFile, "points", "", "Route JSON file drawn on top of the --preview output")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for clicks, saves and GeoJSON sources")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default from config, else 8080)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Receive clicks and publish geometry over MQTT")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "routedraw version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.InitConfig != "":
		return app.RunInitConfig(opts.InitConfig)
	case opts.LoadOnly:
		return app.RunLoadOnly()
	case opts.SubmitFile != "":
		return app.RunSubmit(opts.SubmitFile)
	case opts.PreviewFile != "":
		return app.RunPreview(opts.PreviewFile)
	case opts.HttpMode || opts.MqttMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "No mode selected.")
	fmt.Fprintln(out, "Use --init-config=config.yaml to write a starter configuration")
	fmt.Fprintln(out, "Use --load-only to check the feature-service connection")
	fmt.Fprintln(out, "Use --submit=route.json to save a route without the map")
	fmt.Fprintln(out, "Use --preview=out.svg to render the reference layer")
	fmt.Fprintln(out, "Use --http and/or --mqtt to run the drawing service")
	return nil
}
