package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/emiago/diago"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/Reverse-Call-Center/routing-engine/utils"
)

// SIPDriver serves SIP dialogs through diago and translates them into the
// core's event/command contract. Agent audio travels over the agent
// desktop link, not through this driver, so Bridge here only settles the
// caller leg.
type SIPDriver struct {
	dg        *diago.Diago
	handler   Handler
	logger    *slog.Logger
	promptDir string
	gateway   string

	mu      sync.RWMutex
	dialogs map[string]*leg
}

type leg struct {
	server *diago.DialogServerSession
	client *diago.DialogClientSession
	cancel context.CancelFunc
}

func (l *leg) hangup(ctx context.Context) error {
	if l.server != nil {
		return l.server.Hangup(ctx)
	}
	if l.client != nil {
		return l.client.Hangup(ctx)
	}
	return nil
}

type SIPConfig struct {
	Protocol   string
	ListenAddr string
	Port       int
	Gateway    string
	PromptDir  string
}

func NewSIPDriver(cfg SIPConfig, logger *slog.Logger) (*SIPDriver, error) {
	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("creating SIP user agent: %w", err)
	}

	transport := diago.Transport{
		Transport: cfg.Protocol,
		BindHost:  cfg.ListenAddr,
		BindPort:  cfg.Port,
	}

	return &SIPDriver{
		dg:        diago.NewDiago(ua, diago.WithTransport(transport)),
		logger:    logger.With("subsystem", "sip"),
		promptDir: cfg.PromptDir,
		gateway:   cfg.Gateway,
		dialogs:   make(map[string]*leg),
	}, nil
}

// SetHandler installs the event sink. Must happen before Serve; the driver
// and the routing coordinator reference each other, so one side binds late.
func (d *SIPDriver) SetHandler(h Handler) { d.handler = h }

// Serve answers inbound dialogs until ctx is cancelled. Each dialog gets
// its own goroutine; a stalled call never blocks the accept loop.
func (d *SIPDriver) Serve(ctx context.Context) error {
	d.logger.Info("SIP server listening")
	return d.dg.Serve(ctx, func(inDialog *diago.DialogServerSession) {
		d.handleInbound(ctx, inDialog)
	})
}

func (d *SIPDriver) handleInbound(parent context.Context, inDialog *diago.DialogServerSession) {
	callCtx, cancel := context.WithCancel(parent)
	defer cancel()

	sessionID := utils.NewSessionID()
	caller := utils.ExtractCallerPhone(inDialog.InviteRequest.Headers())
	called := utils.ExtractCalledNumber(inDialog.InviteRequest)

	d.mu.Lock()
	d.dialogs[sessionID] = &leg{server: inDialog, cancel: cancel}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.dialogs, sessionID)
		d.mu.Unlock()
		d.handler.OnDisconnected(sessionID, CauseName(16))
	}()

	inDialog.Trying()
	if err := inDialog.Answer(); err != nil {
		d.logger.Error("answer failed", "session", sessionID, "error", err)
		return
	}

	d.handler.OnCallStarted(CallStarted{SessionID: sessionID, Caller: caller, Called: called})

	// Pump DTMF for the life of the dialog. Listen returns on hangup.
	reader := inDialog.AudioReaderDTMF()
	backoff := 100 * time.Millisecond
	for {
		err := reader.Listen(func(dtmf rune) error {
			d.handler.OnDTMF(sessionID, string(dtmf))
			return nil
		}, 30*time.Second)
		if err == nil {
			backoff = 100 * time.Millisecond
			continue
		}
		if callCtx.Err() != nil || inDialog.Context().Err() != nil {
			return
		}
		// A persistent media error must not spin this loop hot.
		time.Sleep(backoff)
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

func (d *SIPDriver) get(sessionID string) (*leg, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.dialogs[sessionID]
	if !ok {
		return nil, fmt.Errorf("no dialog for session %s", sessionID)
	}
	return l, nil
}

func (d *SIPDriver) Play(ctx context.Context, sessionID, prompt string) error {
	l, err := d.get(sessionID)
	if err != nil {
		return fmt.Errorf("play %s: %w", prompt, err)
	}
	if l.server == nil {
		return fmt.Errorf("play %s: no caller leg for session %s", prompt, sessionID)
	}

	f, err := os.Open(d.promptDir + "/" + prompt)
	if err != nil {
		return fmt.Errorf("opening prompt %s: %w", prompt, err)
	}
	defer f.Close()

	pb, err := l.server.PlaybackCreate()
	if err != nil {
		return fmt.Errorf("creating playback: %w", err)
	}
	if _, err := pb.Play(f, "audio/wav"); err != nil {
		return fmt.Errorf("playing prompt %s: %w", prompt, err)
	}
	return nil
}

// CollectDigits plays the collection prompt; the digits themselves arrive
// through the per-dialog DTMF pump as OnDTMF events.
func (d *SIPDriver) CollectDigits(ctx context.Context, sessionID string, spec CollectSpec) error {
	if spec.Prompt == "" {
		return nil
	}
	return d.Play(ctx, sessionID, spec.Prompt)
}

// Bridge settles the caller leg for agent connection: stop any queue
// audio, play the connect tone. The agent leg itself lives on the agent
// desktop link.
func (d *SIPDriver) Bridge(ctx context.Context, sessionID, agentID string) error {
	if _, err := d.get(sessionID); err != nil {
		return err
	}
	d.logger.Info("bridging", "session", sessionID, "agent", agentID)
	return d.Play(ctx, sessionID, "connect.wav")
}

func (d *SIPDriver) Hold(ctx context.Context, sessionID string) error {
	if _, err := d.get(sessionID); err != nil {
		return err
	}
	return d.Play(ctx, sessionID, "hold.wav")
}

func (d *SIPDriver) Unhold(ctx context.Context, sessionID string) error {
	_, err := d.get(sessionID)
	return err
}

func (d *SIPDriver) Transfer(ctx context.Context, sessionID, target string) error {
	l, err := d.get(sessionID)
	if err != nil {
		return err
	}
	d.logger.Info("transferring", "session", sessionID, "target", target)

	// Originate the far leg through the configured gateway, then release
	// this side.
	recipient := sip.Uri{User: target, Host: d.gateway}
	if _, err := d.dg.Invite(ctx, recipient, diago.InviteOptions{}); err != nil {
		return fmt.Errorf("transfer invite: %w", err)
	}
	return l.hangup(ctx)
}

func (d *SIPDriver) Conference(ctx context.Context, sessionID string, participants []string) error {
	if _, err := d.get(sessionID); err != nil {
		return err
	}
	for _, p := range participants {
		recipient := sip.Uri{User: p, Host: d.gateway}
		if _, err := d.dg.Invite(ctx, recipient, diago.InviteOptions{}); err != nil {
			return fmt.Errorf("conference invite %s: %w", p, err)
		}
	}
	return nil
}

func (d *SIPDriver) Hangup(ctx context.Context, sessionID, reason string) error {
	l, err := d.get(sessionID)
	if err != nil {
		return err
	}
	d.logger.Info("hangup", "session", sessionID, "reason", reason)
	return l.hangup(ctx)
}

// Dial originates an outbound leg for predictive dialing.
func (d *SIPDriver) Dial(ctx context.Context, sessionID, caller, called string) error {
	recipient := sip.Uri{User: called, Host: d.gateway}
	dialog, err := d.dg.Invite(ctx, recipient, diago.InviteOptions{})
	if err != nil {
		return fmt.Errorf("dial %s: %w", called, err)
	}

	dctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.dialogs[sessionID] = &leg{client: dialog, cancel: cancel}
	d.mu.Unlock()

	d.handler.OnAnswered(sessionID)

	go func() {
		select {
		case <-dialog.Context().Done():
		case <-dctx.Done():
		}
		cancel()
		d.mu.Lock()
		delete(d.dialogs, sessionID)
		d.mu.Unlock()
		d.handler.OnDisconnected(sessionID, CauseName(16))
	}()
	return nil
}
