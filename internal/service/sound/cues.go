package sound

import (
	"MacroRecorder/internal/service/events"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Cues проигрывает короткие звуковые сигналы при начале записи и воспроизведения.
type Cues struct {
	logger     *zap.SugaredLogger
	pathRecord string
	pathPlay   string
	ply        Player
	busy       atomic.Bool
	ctx        context.Context
}

// NewCues создаёт сигналы. Пустые пути заменяются на sound/record.mp3 и sound/play.mp3
// (сначала ищем рядом с бинарём).
func NewCues(ctx context.Context, logger *zap.SugaredLogger, ply Player, pathRecord, pathPlay string) *Cues {
	resolve := func(def string) string {
		if exe, err := os.Executable(); err == nil {
			cand := filepath.Join(filepath.Dir(exe), def)
			if _, statErr := os.Stat(cand); statErr == nil {
				return cand
			}
		}
		return filepath.FromSlash(def)
	}
	if strings.TrimSpace(pathRecord) == "" {
		pathRecord = resolve(filepath.Join("sound", "record.mp3"))
	}
	if strings.TrimSpace(pathPlay) == "" {
		pathPlay = resolve(filepath.Join("sound", "play.mp3"))
	}
	if ply == nil {
		ply = NewSpeaker(0)
	}
	return &Cues{logger: logger, pathRecord: pathRecord, pathPlay: pathPlay, ply: ply, ctx: ctx}
}

// Notify реагирует на смену состояния. Звук играет в отдельной горутине;
// если предыдущий сигнал ещё звучит, новый пропускается.
func (c *Cues) Notify(n events.Notification) {
	if n.Type != events.StateChanged {
		return
	}
	var path string
	switch n.State {
	case "recording":
		path = c.pathRecord
	case "playing":
		path = c.pathPlay
	default:
		return
	}
	if !c.busy.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.busy.Store(false)
		_ = c.play(c.ctx, path)
	}()
}

func (c *Cues) play(ctx context.Context, path string) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	default:
	}

	f, err := os.Open(path)
	if err != nil {
		c.logger.Warnw("Cannot open cue sound", "path", path, "error", err)
		return err
	}
	var rc io.ReadCloser = f
	defer rc.Close()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		ext = "mp3"
	}
	if err := c.ply.Play(ext, rc); err != nil {
		c.logger.Warnw("Cannot play cue sound", "path", path, "error", err)
		return err
	}
	return nil
}
