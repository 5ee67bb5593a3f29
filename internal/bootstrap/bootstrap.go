package bootstrap

import (
	"fmt"

	hclog "github.com/hashicorp/go-hclog"

	captureinadapter "roomscan/internal/modules/capture/adapter/in"
	captureoutadapter "roomscan/internal/modules/capture/adapter/out"
	captureout "roomscan/internal/modules/capture/port/out"
	captureservice "roomscan/internal/modules/capture/service"
	captureusecase "roomscan/internal/modules/capture/usecase"
	"roomscan/internal/platform/clock"
	"roomscan/internal/platform/config"
	"roomscan/internal/platform/id"
)

// Mode selects where the capture view is presented.
type Mode int

const (
	// ModeTerminal draws the capture controls in the local terminal.
	ModeTerminal Mode = iota
	// ModeHeadless leaves controls to gateway clients.
	ModeHeadless
)

type App struct {
	CaptureCLI captureinadapter.CLIHandler
	Gateway    *captureinadapter.Gateway
	Bridge     *captureinadapter.WSServer

	tui   *captureoutadapter.TUIPresenter
	index captureout.ScanIndex
}

func New(cfg config.Config, mode Mode, logger hclog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	clk := clock.SystemClock{}
	ids := id.UUID{}

	index, err := captureoutadapter.NewSQLiteScanIndex(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("new scan index: %w", err)
	}
	scanner := captureoutadapter.NewGRPCScanner(cfg.Scanner.Binary, cfg.Scanner.SHA256, cfg.Scanner.StartTimeout, logger.Named("scanner"))

	app := &App{index: index}
	var presenter captureout.Presenter
	switch mode {
	case ModeTerminal:
		app.tui = captureoutadapter.NewTUIPresenter(logger.Named("view"))
		presenter = app.tui
	default:
		presenter = captureoutadapter.NewHeadlessPresenter(logger.Named("view"))
	}

	captureSvc := captureservice.NewSessionService(
		clk,
		ids,
		scanner,
		presenter,
		captureoutadapter.NewFileExporter(ids),
		index,
		cfg.WorkDir,
		logger.Named("session"),
	)
	captureUC := captureusecase.NewInteractor(captureSvc, cfg.Scanner.Coaching)

	app.CaptureCLI = captureinadapter.NewCLIHandler(captureUC)
	app.Gateway = captureinadapter.NewGateway(captureUC, logger.Named("gateway"))
	app.Bridge = captureinadapter.NewWSServer(app.Gateway, cfg.Gateway.AllowedOrigins, logger.Named("bridge"))
	return app, nil
}

// WaitUI blocks until the terminal capture view has exited. It returns
// immediately in headless mode.
func (a *App) WaitUI() {
	if a.tui != nil {
		a.tui.Wait()
	}
}

// Close releases the scan index.
func (a *App) Close() error {
	if a.index == nil {
		return nil
	}
	return a.index.Close()
}
