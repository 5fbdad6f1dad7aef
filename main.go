package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line.
type AppOptions struct {
	ConfigFile    string
	PlanID        string
	InputFile     string
	ValidateFile  string
	ExportGeoJSON string
	RenderFile    string
	RenderFormat  string
	UploadFile    string
	Simplify      float64
	HttpPort      int
	MqttMode      bool
}

// Runner is what run dispatches to. *App implements it.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunValidate() error
	RunExportGeoJSON() error
	RunRender() error
	RunUpload() error
	RunService() error
}

func main() {
	_ = godotenv.Load(".env")

	if err := run(os.Args[1:], os.Stdout, NewApp(os.Stdout)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		if errors.Is(err, errInvalidPlan) {
			os.Exit(1)
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("floorplan", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.PlanID, "plan", "", "Floor plan id to edit (service) or fetch (batch commands)")
	fs.StringVar(&opts.InputFile, "input", "", "Read the floor plan from a JSON file instead of the API")
	fs.StringVar(&opts.ValidateFile, "validate", "", "Validate a floor plan JSON file and exit")
	fs.StringVar(&opts.ExportGeoJSON, "export-geojson", "", "Write the floor plan as GeoJSON to this file and exit")
	fs.StringVar(&opts.RenderFile, "render", "", "Render a floor plan preview to this file and exit")
	fs.StringVar(&opts.RenderFormat, "format", "", "Render format: svg or png (default: from --render extension)")
	fs.StringVar(&opts.UploadFile, "upload", "", "Upload a source drawing (PDF, PNG or DWG) for --plan and exit")
	fs.Float64Var(&opts.Simplify, "simplify", 0, "Douglas-Peucker tolerance applied to outlines on GeoJSON export")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default: from config, 8080)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Enable real-time updates over MQTT")

	if err := fs.Parse(args); err != nil {
		return err
	}

	app.ApplyOptions(opts)

	switch {
	case opts.ValidateFile != "":
		return app.RunValidate()
	case opts.ExportGeoJSON != "":
		return app.RunExportGeoJSON()
	case opts.RenderFile != "":
		return app.RunRender()
	case opts.UploadFile != "":
		return app.RunUpload()
	}

	fmt.Fprintf(out, "floorplan version: %s\n", Version)
	fmt.Fprintln(out, "floorplan editor service starting...")
	return app.RunService()
}
