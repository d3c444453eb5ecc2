package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kantinyonetim/canteen-service/internal/menu"
	"github.com/kantinyonetim/canteen-service/internal/order"
	"github.com/kantinyonetim/canteen-service/internal/user"
)

type State string

const (
	StateIdle         State = "idle"
	StateTranscribing State = "transcribing"
	StateExtracting   State = "extracting"
	StatePlacing      State = "placing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

var (
	ErrTranscription = errors.New("speech could not be transcribed")
	ErrExtraction    = errors.New("no order could be extracted from the speech")
)

// StageError reports the stage a voice request failed in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("voice order failed while %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Catalog interface {
	List(ctx context.Context, f menu.Filter) ([]menu.Item, error)
}

type Placer interface {
	PlaceNamedOrder(ctx context.Context, actor user.Actor, notes string, lines []order.NamedLine) (*order.Order, error)
	ResolveNames(ctx context.Context, lines []order.NamedLine) ([]order.ResolvedLine, error)
}

type LineExtractor interface {
	Extract(ctx context.Context, transcript string, menu []string) ([]order.NamedLine, error)
}

type Observer interface {
	VoiceStage(stage string, d time.Duration)
	VoiceOutcome(state, stage string)
}

type nopObserver struct{}

func (nopObserver) VoiceStage(string, time.Duration) {}
func (nopObserver) VoiceOutcome(string, string)      {}

type Result struct {
	Transcript string               `json:"transcription"`
	Lines      []order.NamedLine    `json:"-"`
	Resolved   []order.ResolvedLine `json:"items,omitempty"`
	Order      *order.Order         `json:"order,omitempty"`
	State      State                `json:"state"`
}

type Pipeline struct {
	transcriber Transcriber
	extractor   LineExtractor
	catalog     Catalog
	placer      Placer
	observer    Observer
	timeout     time.Duration
}

func NewPipeline(t Transcriber, e LineExtractor, catalog Catalog, placer Placer, observer Observer, timeout time.Duration) *Pipeline {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Pipeline{
		transcriber: t,
		extractor:   e,
		catalog:     catalog,
		placer:      placer,
		observer:    observer,
		timeout:     timeout,
	}
}

// Run transcribes the audio, extracts order lines and places them as one
// order. Nothing is committed unless every line can be placed.
func (p *Pipeline) Run(ctx context.Context, actor user.Actor, audio []byte, filename string) (*Result, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	res, err := p.understand(ctx, audio, filename)
	if err != nil {
		return res, err
	}

	err = p.stage(res, StatePlacing, func() error {
		o, err := p.placer.PlaceNamedOrder(ctx, actor, "Sesli sipariş", res.Lines)
		if err != nil {
			return err
		}
		res.Order = o
		return nil
	})
	if err != nil {
		return res, err
	}

	p.finish(res)
	log.Info().
		Str("user", actor.Username).
		Str("order_id", res.Order.ID.String()).
		Int("lines", len(res.Lines)).
		Msg("voice order placed")
	return res, nil
}

// Parse runs transcription and extraction and resolves the lines against
// the menu without placing an order.
func (p *Pipeline) Parse(ctx context.Context, audio []byte, filename string) (*Result, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	res, err := p.understand(ctx, audio, filename)
	if err != nil {
		return res, err
	}

	err = p.stage(res, StatePlacing, func() error {
		resolved, err := p.placer.ResolveNames(ctx, res.Lines)
		if err != nil {
			return err
		}
		res.Resolved = resolved
		return nil
	})
	if err != nil {
		return res, err
	}

	p.finish(res)
	return res, nil
}

func (p *Pipeline) understand(ctx context.Context, audio []byte, filename string) (*Result, error) {
	res := &Result{State: StateIdle}

	err := p.stage(res, StateTranscribing, func() error {
		text, err := p.transcriber.Transcribe(ctx, audio, filename)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTranscription, err)
		}
		if text == "" {
			return fmt.Errorf("%w: empty transcript", ErrTranscription)
		}
		res.Transcript = text
		return nil
	})
	if err != nil {
		return res, err
	}

	err = p.stage(res, StateExtracting, func() error {
		items, err := p.catalog.List(ctx, menu.Filter{})
		if err != nil {
			return fmt.Errorf("failed to load menu: %w", err)
		}
		names := make([]string, 0, len(items))
		for _, it := range items {
			names = append(names, it.Name)
		}
		lines, err := p.extractor.Extract(ctx, res.Transcript, names)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		res.Lines = lines
		return nil
	})
	return res, err
}

func (p *Pipeline) stage(res *Result, state State, fn func() error) error {
	res.State = state
	start := time.Now()
	err := fn()
	p.observer.VoiceStage(string(state), time.Since(start))
	if err != nil {
		res.State = StateFailed
		p.observer.VoiceOutcome(string(StateFailed), string(state))
		log.Warn().Err(err).Str("stage", string(state)).Msg("voice order failed")
		return &StageError{Stage: state, Err: err}
	}
	return nil
}

func (p *Pipeline) finish(res *Result) {
	res.State = StateDone
	p.observer.VoiceOutcome(string(StateDone), "")
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}
