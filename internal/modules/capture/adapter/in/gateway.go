package in

import (
	"context"
	"encoding/json"
	"errors"

	hclog "github.com/hashicorp/go-hclog"

	"roomscan/internal/modules/capture/dto"
	capturein "roomscan/internal/modules/capture/port/in"
)

const (
	ActionOpen         = "open"
	ActionOpenRoomPlan = "openRoomPlan"
	ActionIsSupported  = "isSupported"
	ActionPress        = "press"
	ActionPause        = "pause"

	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Command is one invocation from the host binding.
type Command struct {
	CallbackID string            `json:"callbackId"`
	Action     string            `json:"action"`
	Args       []json.RawMessage `json:"args,omitempty"`
}

// Result answers a Command. Message is a bool, a string or an object
// depending on the action.
type Result struct {
	CallbackID   string `json:"callbackId"`
	Status       string `json:"status"`
	KeepCallback bool   `json:"keepCallback"`
	Message      any    `json:"message"`
}

type OpenPayload struct {
	USDZ    string `json:"usdz"`
	JSON    string `json:"json"`
	Message string `json:"message"`
	ID      string `json:"id"`
	Empty   bool   `json:"empty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type openArgs struct {
	DisableCoaching bool `json:"disableCoaching"`
}

type Gateway struct {
	usecase capturein.Usecase
	logger  hclog.Logger
}

func NewGateway(usecase capturein.Usecase, logger hclog.Logger) *Gateway {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Gateway{usecase: usecase, logger: logger}
}

// Exec runs cmd and delivers its results through send. For an accepted
// open it returns the session handle; the terminal result arrives later.
func (g *Gateway) Exec(ctx context.Context, cmd Command, send func(Result)) string {
	switch cmd.Action {
	case ActionOpen, ActionOpenRoomPlan:
		return g.open(ctx, cmd, send)
	case ActionIsSupported:
		out, err := g.usecase.IsSupported(ctx)
		if err != nil {
			send(errorResult(cmd.CallbackID, err))
			return ""
		}
		send(Result{CallbackID: cmd.CallbackID, Status: StatusOK, KeepCallback: true, Message: out.Supported})
	case ActionPress:
		var control string
		if len(cmd.Args) == 0 || json.Unmarshal(cmd.Args[0], &control) != nil {
			send(errorResult(cmd.CallbackID, errors.New("press requires \"done\" or \"cancel\"")))
			return ""
		}
		g.acknowledge(cmd.CallbackID, g.usecase.Press(ctx, control), send)
	case ActionPause:
		g.acknowledge(cmd.CallbackID, g.usecase.Background(ctx), send)
	default:
		g.logger.Warn("invalid action", "action", cmd.Action, "callback", cmd.CallbackID)
		send(Result{CallbackID: cmd.CallbackID, Status: StatusError, Message: ErrorPayload{Message: "invalid action"}})
	}
	return ""
}

func (g *Gateway) open(ctx context.Context, cmd Command, send func(Result)) string {
	var args openArgs
	if len(cmd.Args) > 0 {
		if err := json.Unmarshal(cmd.Args[0], &args); err != nil {
			send(errorResult(cmd.CallbackID, err))
			return ""
		}
	}
	sessionID, err := g.usecase.Open(ctx, dto.OpenInput{CallbackID: cmd.CallbackID, DisableCoaching: args.DisableCoaching}, func(resp dto.Response) {
		send(responseResult(resp))
	})
	if err != nil {
		g.logger.Warn("open rejected", "callback", cmd.CallbackID, "error", err)
		send(errorResult(cmd.CallbackID, err))
		return ""
	}
	g.logger.Info("session opened", "callback", cmd.CallbackID, "session", sessionID)
	return sessionID
}

func (g *Gateway) acknowledge(callbackID string, err error, send func(Result)) {
	if err != nil {
		send(errorResult(callbackID, err))
		return
	}
	send(Result{CallbackID: callbackID, Status: StatusOK, Message: true})
}

func responseResult(resp dto.Response) Result {
	if !resp.OK {
		return Result{CallbackID: resp.CallbackID, Status: StatusError, Message: ErrorPayload{Message: resp.Message}}
	}
	return Result{
		CallbackID: resp.CallbackID,
		Status:     StatusOK,
		Message: OpenPayload{
			USDZ:    resp.ModelURL,
			JSON:    resp.DataURL,
			Message: resp.Message,
			ID:      resp.ScanID,
			Empty:   resp.Empty,
		},
	}
}

func errorResult(callbackID string, err error) Result {
	return Result{CallbackID: callbackID, Status: StatusError, Message: ErrorPayload{Message: err.Error()}}
}
