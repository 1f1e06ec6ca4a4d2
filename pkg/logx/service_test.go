package logx

import (
	"sync"
	"testing"
)

type captureSink struct {
	mu    sync.Mutex
	lines []struct {
		level Level
		msg   string
		tag   string
	}
}

func (c *captureSink) Write(level Level, msg, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, struct {
		level Level
		msg   string
		tag   string
	}{level, msg, tag})
}

func TestSinkReceivesLevelMessageTag(t *testing.T) {
	svc, log := New(Config{
		Level:   "debug",
		Console: false,
		Sink:    SinkConfig{MinLevel: "warn", RatePerSec: 100},
	})
	defer svc.Close()

	sink := &captureSink{}
	svc.SetSink(sink)

	log.Info("below sink threshold")
	log.Warn("disk filling", Tag("ledger"))
	log.Error("job failed", Tag("sched"), String("job", "report"))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.lines) != 2 {
		t.Fatalf("sink received %d lines, want 2", len(sink.lines))
	}
	if sink.lines[0].level != LevelWarn || sink.lines[0].msg != "disk filling" || sink.lines[0].tag != "ledger" {
		t.Fatalf("unexpected first line: %+v", sink.lines[0])
	}
	if sink.lines[1].level != LevelError || sink.lines[1].tag != "sched" {
		t.Fatalf("unexpected second line: %+v", sink.lines[1])
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	var l Logger
	l.Info("nothing happens")
	Nop().Error("still nothing", String("k", "v"))
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
}

func TestWithFieldsAreFixed(t *testing.T) {
	svc, log := New(Config{Level: "info", Sink: SinkConfig{MinLevel: "info", RatePerSec: 100}})
	defer svc.Close()

	sink := &captureSink{}
	svc.SetSink(sink)

	tagged := log.With(Tag("timer"))
	tagged.Info("armed")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.lines) != 1 || sink.lines[0].tag != "timer" {
		t.Fatalf("expected tagged line, got %+v", sink.lines)
	}
}
