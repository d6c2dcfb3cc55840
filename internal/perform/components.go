package perform

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
)

// StepAnimation is the built-in animation component. It has no renderer of
// its own; it paces live playback by holding each accepted command for a
// duration derived from the command kind, then signalling completion. A real
// viewer observes the queue lifecycle notifications and draws alongside.
type StepAnimation struct {
	step time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

func NewStepAnimation(step time.Duration) *StepAnimation {
	return &StepAnimation{step: step}
}

func (s *StepAnimation) Perform(cmd command.Command, done func()) bool {
	d := s.duration(cmd)
	if d <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = true
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		fire := s.pending
		s.pending = false
		s.mu.Unlock()
		if fire {
			done()
		}
	})
	return true
}

func (s *StepAnimation) Cancel(cmd command.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
}

func (s *StepAnimation) duration(cmd command.Command) time.Duration {
	switch cmd.Kind {
	case command.KindMove:
		if cmd.Move.Gait == command.MoveTeleport {
			return s.step / 2
		}
		return s.step
	case command.KindTurn:
		return s.step / 2
	case command.KindControl, command.KindRemove:
		return s.step / 2
	case command.KindRun, command.KindFail:
		return s.step * 2
	}
	return 0 // add and anything else animates nowhere
}

// CuePlayer hands a named sound cue to whatever audio backend is wired in.
type CuePlayer interface {
	Play(cue string)
}

// SoundCue maps command kinds to cue names and fires them. Completion is
// immediate: audio never gates the queue.
type SoundCue struct {
	player CuePlayer
}

func NewSoundCue(player CuePlayer) *SoundCue {
	return &SoundCue{player: player}
}

func (s *SoundCue) Perform(cmd command.Command, done func()) bool {
	cue := cueFor(cmd)
	if cue == "" {
		return false
	}
	s.player.Play(cue)
	done()
	return true
}

func (s *SoundCue) Cancel(cmd command.Command) {}

func cueFor(cmd command.Command) string {
	switch cmd.Kind {
	case command.KindMove:
		return "step"
	case command.KindTurn:
		return "turn"
	case command.KindRemove:
		if cmd.Picked {
			return "collect"
		}
	case command.KindControl:
		return "toggle"
	case command.KindFail:
		return "bump"
	}
	return ""
}

// Narrator is the accessibility component. It is attached only while the
// narration mode is active and speaks (logs) each command's description.
type Narrator struct {
	log *zap.Logger
}

func NewNarrator(log *zap.Logger) *Narrator {
	return &Narrator{log: log}
}

func (n *Narrator) Perform(cmd command.Command, done func()) bool {
	n.log.Info("narrate", zap.String("text", cmd.Description()))
	done()
	return true
}

func (n *Narrator) Cancel(cmd command.Command) {}
