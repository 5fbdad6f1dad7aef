package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/kwv/floorplan/editor"
	"github.com/kwv/floorplan/render"
	"github.com/kwv/floorplan/spatial"
)

// errInvalidPlan is returned by RunValidate when the plan has errors.
var errInvalidPlan = errors.New("floor plan is invalid")

const shutdownTimeout = 10 * time.Second

// App encapsulates the application state and dependencies
type App struct {
	Config      *editor.Config
	Client      *editor.APIClient
	Session     *editor.Session
	Coordinator *editor.Coordinator
	Reconciler  *editor.Reconciler
	Realtime    *editor.RealtimeClient
	Publisher   *editor.PatchPublisher
	Hub         *Hub

	// CLI Flags (effectively dependencies)
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

	out    io.Writer
	origin string

	// newRealtime builds the MQTT subscriber; tests swap in the mock client.
	newRealtime func(cfg editor.MQTTConfig, planID string, h editor.PatchHandler) (*editor.RealtimeClient, error)
}

// NewApp creates a new App instance writing reports to out.
func NewApp(out io.Writer) *App {
	return &App{
		out:         out,
		origin:      uuid.NewString(),
		newRealtime: editor.NewRealtimeClient,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.PlanID = opts.PlanID
	a.InputFile = opts.InputFile
	a.ValidateFile = opts.ValidateFile
	a.ExportGeoJSON = opts.ExportGeoJSON
	a.RenderFile = opts.RenderFile
	a.RenderFormat = opts.RenderFormat
	a.UploadFile = opts.UploadFile
	a.Simplify = opts.Simplify
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
}

// loadConfig reads the config file once. Batch commands working on a
// local file do not need one.
func (a *App) loadConfig() (*editor.Config, error) {
	if a.Config != nil {
		return a.Config, nil
	}
	cfg, err := editor.LoadConfig(a.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a.Config = cfg
	return cfg, nil
}

func (a *App) apiClient() (*editor.APIClient, error) {
	if a.Client != nil {
		return a.Client, nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	client, err := editor.NewAPIClient(cfg.API.BaseURL, cfg.ClientOptions()...)
	if err != nil {
		return nil, err
	}
	a.Client = client
	return client, nil
}

// loadPlanFile reads a floor plan JSON file and checks it is well formed.
func loadPlanFile(path string) (*spatial.FloorPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}
	var plan spatial.FloorPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing %s: %w: %v", path, spatial.ErrMalformedPayload, err)
	}
	if err := spatial.ValidatePayload(&plan); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &plan, nil
}

// sourcePlan returns the plan a batch command works on: --input when set,
// otherwise --plan fetched from the API.
func (a *App) sourcePlan(ctx context.Context) (*spatial.FloorPlan, error) {
	if a.InputFile != "" {
		return loadPlanFile(a.InputFile)
	}
	if a.PlanID == "" {
		return nil, fmt.Errorf("either --input or --plan is required")
	}
	client, err := a.apiClient()
	if err != nil {
		return nil, err
	}
	res, err := client.GetFloorPlan(ctx, a.PlanID)
	if err != nil {
		return nil, err
	}
	return res.Plan, nil
}

// RunValidate audits a floor plan file and prints every finding.
func (a *App) RunValidate() error {
	plan, err := loadPlanFile(a.ValidateFile)
	if err != nil {
		return err
	}
	tolerance := spatial.DefaultOverlapTolerance
	if a.Config != nil {
		tolerance = a.Config.Editor.OverlapTolerance
	}
	res, err := spatial.ValidateFloorPlan(plan, tolerance)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "=== %s (%s) ===\n", plan.Metadata.Name, plan.ID)
	fmt.Fprintf(a.out, "Status: %s, version %d, %d spaces\n", plan.Status, plan.Metadata.Version, len(plan.Spaces))
	for _, sp := range plan.Spaces {
		area, err := spatial.CalculateSpaceArea(sp.Coordinates, spatial.Is3DSet(sp.Coordinates))
		if err != nil {
			fmt.Fprintf(a.out, "  %-12s %-20s area: n/a (%v)\n", sp.ID, sp.Name, err)
			continue
		}
		fmt.Fprintf(a.out, "  %-12s %-20s area: %.2f\n", sp.ID, sp.Name, area)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(a.out, "ERROR: %s\n", e)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(a.out, "WARNING: %s\n", w)
	}
	if !res.IsValid {
		fmt.Fprintf(a.out, "INVALID (%d errors, %d warnings)\n", len(res.Errors), len(res.Warnings))
		return errInvalidPlan
	}
	fmt.Fprintf(a.out, "VALID (%d warnings)\n", len(res.Warnings))
	return nil
}

// RunExportGeoJSON writes the plan's spaces as a GeoJSON feature
// collection, optionally simplifying each outline first.
func (a *App) RunExportGeoJSON() error {
	plan, err := a.sourcePlan(context.Background())
	if err != nil {
		return err
	}
	if a.Simplify > 0 {
		for i := range plan.Spaces {
			simplified, err := spatial.SimplifyCoordinates(plan.Spaces[i].Coordinates, a.Simplify)
			if err != nil {
				return fmt.Errorf("simplifying space %q: %w", plan.Spaces[i].ID, err)
			}
			plan.Spaces[i].Coordinates = simplified
		}
	}

	data, err := spatial.ToFeatureCollection(plan).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding GeoJSON: %w", err)
	}
	if err := os.WriteFile(a.ExportGeoJSON, data, 0644); err != nil {
		return fmt.Errorf("writing GeoJSON: %w", err)
	}
	fmt.Fprintf(a.out, "Wrote %d spaces to %s\n", len(plan.Spaces), a.ExportGeoJSON)
	return nil
}

// RunRender writes an SVG or PNG preview. The format defaults to the
// output file extension.
func (a *App) RunRender() error {
	format := strings.ToLower(a.RenderFormat)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(a.RenderFile)), ".")
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported render format %q (use svg or png)", format)
	}

	plan, err := a.sourcePlan(context.Background())
	if err != nil {
		return err
	}

	f, err := os.Create(a.RenderFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer f.Close()

	opts := render.DefaultOptions()
	if format == "svg" {
		err = render.SVG(f, plan, opts)
	} else {
		err = render.PNG(f, plan, opts)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Rendered %s to %s\n", plan.ID, a.RenderFile)
	return nil
}

// RunUpload sends a source drawing for --plan to the floor plan service.
// The file is checked locally first so unsupported files never leave the
// machine.
func (a *App) RunUpload() error {
	if a.PlanID == "" {
		return fmt.Errorf("--plan is required for --upload")
	}
	data, err := os.ReadFile(a.UploadFile)
	if err != nil {
		return fmt.Errorf("reading upload: %w", err)
	}
	if _, err := editor.ValidateUpload(data); err != nil {
		return fmt.Errorf("%s: %w", a.UploadFile, err)
	}
	client, err := a.apiClient()
	if err != nil {
		return err
	}
	res, err := client.UploadFile(context.Background(), a.PlanID, a.UploadFile, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Uploaded %s (%s) to %s\n", filepath.Base(a.UploadFile), res.ContentType, res.FileURL)
	return nil
}

// startSession loads the plan and wires the session, autosave, real-time
// updates and the websocket hub.
func (a *App) startSession(ctx context.Context) error {
	if a.PlanID == "" {
		return fmt.Errorf("--plan is required to start the editor service")
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	spatial.ConfigureCaches(cfg.Editor.AreaCacheSize, cfg.Editor.PathCacheSize)

	client, err := a.apiClient()
	if err != nil {
		return err
	}
	loaded, err := client.GetFloorPlan(ctx, a.PlanID)
	if err != nil {
		return fmt.Errorf("loading floor plan %s: %w", a.PlanID, err)
	}
	log.Printf("[SESSION] Loaded floor plan %s version %d (%d spaces, cache-control %q)",
		loaded.Plan.ID, loaded.Plan.Metadata.Version, len(loaded.Plan.Spaces), loaded.CacheControl)

	if draft, err := editor.LoadDraft(cfg.DraftDir, a.PlanID); err == nil {
		log.Printf("[SESSION] Found unsaved draft %s (version %d); the server copy (version %d) is used",
			editor.DraftPath(cfg.DraftDir, a.PlanID), draft.Metadata.Version, loaded.Plan.Metadata.Version)
	} else if !errors.Is(err, fs.ErrNotExist) {
		log.Printf("[SESSION] Ignoring unreadable draft: %v", err)
	}

	session, err := editor.NewSession(loaded.Plan, cfg.SessionOptions())
	if err != nil {
		return err
	}
	a.Session = session

	a.Hub = NewHub()
	session.Subscribe(a.Hub.Broadcast)

	if a.MqttMode {
		if err := a.startRealtime(cfg, loaded.Plan); err != nil {
			return err
		}
	}

	a.Coordinator = editor.NewCoordinator(session, client,
		editor.WithAutosaveDelay(cfg.Editor.AutosaveDelay),
		editor.WithSaveTimeout(cfg.SaveDeadline()),
		editor.WithRetryDelay(cfg.Editor.RetryDelay),
		editor.WithSavedHook(a.onSaved),
	)
	return nil
}

func (a *App) startRealtime(cfg *editor.Config, plan *spatial.FloorPlan) error {
	a.Reconciler = editor.NewReconciler(a.Session, a.origin)
	rc, err := a.newRealtime(cfg.MQTT, plan.ID, a.Reconciler.HandleMessage)
	if err != nil {
		return fmt.Errorf("initializing MQTT: %w", err)
	}
	if rc == nil {
		log.Println("[MQTT] --mqtt given but no broker configured; continuing without real-time updates")
		return nil
	}
	a.Realtime = rc
	a.Publisher = editor.NewPatchPublisher(rc.Client(), cfg.MQTT.TopicPrefix, a.origin)
	a.Publisher.Track(plan)
	rc.Start()
	return nil
}

// onSaved runs after every confirmed save.
func (a *App) onSaved(saved *spatial.FloorPlan) {
	if a.Config != nil {
		if err := editor.RemoveDraft(a.Config.DraftDir, saved.ID); err != nil {
			log.Printf("[SAVE] %v", err)
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.PublishSaved(saved); err != nil {
			log.Printf("[MQTT] Error publishing saved plan: %v", err)
		}
	}
}

// shutdown flushes pending edits, keeps a draft of anything that could
// not be saved and releases connections.
func (a *App) shutdown(ctx context.Context) {
	if a.Coordinator != nil {
		if err := a.Coordinator.Flush(ctx); err != nil {
			log.Printf("[SAVE] Final save failed: %v", err)
		}
		a.Coordinator.Close()
	}
	if a.Session != nil && a.Session.IsDirty() && a.Config != nil {
		path, err := editor.SaveDraft(a.Config.DraftDir, a.Session.Present())
		if err != nil {
			log.Printf("[SAVE] Could not write draft: %v", err)
		} else {
			fmt.Fprintf(a.out, "Unsaved edits written to %s\n", path)
		}
	}
	if a.Realtime != nil {
		a.Realtime.Disconnect()
	}
	if a.Hub != nil {
		a.Hub.Close()
	}
}

// RunService runs the editor service until interrupted.
func (a *App) RunService() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.startSession(ctx); err != nil {
		return err
	}

	port := a.HttpPort
	if port == 0 {
		port = a.Config.HTTP.Port
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           newHTTPServer(a.Session, a.Coordinator, a.Hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	fmt.Fprintln(a.out, "\nService Running")
	fmt.Fprintln(a.out, "===============")
	fmt.Fprintf(a.out, "Editing floor plan %s\n", a.PlanID)
	if a.Realtime != nil {
		fmt.Fprintf(a.out, "Real-time updates on %s\n", a.Realtime.Topic())
	}
	fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", port)
	fmt.Fprintln(a.out, "  GET  /session            - Editing state")
	fmt.Fprintln(a.out, "  GET  /session/ws         - Session events")
	fmt.Fprintln(a.out, "  GET  /floorplan.svg      - Vector preview")
	fmt.Fprintln(a.out, "  GET  /floorplan.png      - Raster preview")
	fmt.Fprintln(a.out, "  GET  /metrics            - Prometheus metrics")
	fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		log.Printf("[HTTP] Server error: %v", runErr)
	}

	fmt.Fprintln(a.out, "\nShutting down service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	a.shutdown(shutdownCtx)
	fmt.Fprintln(a.out, "Service stopped")
	return runErr
}
