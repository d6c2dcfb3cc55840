package wire

import (
	"testing"

	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/grid"
)

func TestEncodeCommandTagsEveryKind(t *testing.T) {
	actor := command.NewPerformerID(3, 1)
	gem := command.NewPerformerID(7, 0)

	cases := []command.Command{
		command.Move(actor, grid.Coordinate{X: -1, Y: 2}, grid.Coordinate{X: 0, Y: 2}, command.MoveJump),
		command.Turn(actor, grid.West, true),
		command.Add(gem, gem),
		command.Collect(actor, gem),
		command.Control(gem, command.ControlPortal, true),
		command.Run(actor, "celebrate", 2),
		command.Fail(actor, "fell in the water"),
	}

	for _, want := range cases {
		data := EncodeCommand(want)
		if data[0] != OpCommand {
			t.Fatalf("%s: opcode 0x%02x", want.Kind, data[0])
		}
		got, err := DecodeCommand(data)
		if err != nil {
			t.Fatalf("%s: decode: %v", want.Kind, err)
		}
		if got.Kind != want.Kind || got.Performer != want.Performer {
			t.Fatalf("%s: header mismatch: %+v", want.Kind, got)
		}
		switch want.Kind {
		case command.KindMove:
			if got.Move != want.Move {
				t.Fatalf("move spec %+v, want %+v", got.Move, want.Move)
			}
		case command.KindTurn:
			if got.Turn != want.Turn {
				t.Fatalf("turn spec %+v, want %+v", got.Turn, want.Turn)
			}
		case command.KindAdd, command.KindRemove:
			if got.Picked != want.Picked || !command.SameItems(got, want) {
				t.Fatalf("placement %+v, want %+v", got, want)
			}
		case command.KindControl:
			if got.Control != want.Control {
				t.Fatalf("control spec %+v, want %+v", got.Control, want.Control)
			}
		case command.KindRun:
			if got.Run != want.Run {
				t.Fatalf("run spec %+v, want %+v", got.Run, want.Run)
			}
		case command.KindFail:
			if got.Reason != want.Reason {
				t.Fatalf("reason %q, want %q", got.Reason, want.Reason)
			}
		}
	}
}

func TestDecodeRejectsWrongOpcode(t *testing.T) {
	if _, err := DecodeCommand(EncodeReady()); err == nil {
		t.Fatal("ready payload decoded as a command")
	}
	if _, err := DecodeFinished(EncodeBatchDone(3)); err == nil {
		t.Fatal("batch-done payload decoded as a finish")
	}
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	w := NewWriter(OpCommand)
	w.WriteU8(0xEE)
	w.WriteU64(1)
	if _, err := DecodeCommand(w.Bytes()); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestBatchDoneCarriesCount(t *testing.T) {
	data := EncodeBatchDone(501)
	r := NewReader(data)
	if r.Opcode() != OpBatchDone {
		t.Fatalf("opcode 0x%02x", r.Opcode())
	}
	if n := r.ReadI32(); n != 501 {
		t.Fatalf("count=%d, want 501", n)
	}
}

func TestDrainReportRoundTrip(t *testing.T) {
	n, err := DecodeDrained(EncodeDrained(17))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != 17 {
		t.Fatalf("count=%d, want 17", n)
	}
	if _, err := DecodeDrained(EncodeReady()); err == nil {
		t.Fatal("ready opcode must not decode as a drain report")
	}
}

func TestFinishedCriteriaSentinel(t *testing.T) {
	local := Finish{Passed: true, Gems: 2, Switches: 1}
	got, err := DecodeFinished(EncodeFinished(local))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != local {
		t.Fatalf("finish %+v, want %+v", got, local)
	}

	elsewhere := Finish{Passed: false, CriteriaElsewhere: true}
	got, err = DecodeFinished(EncodeFinished(elsewhere))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.CriteriaElsewhere || got.Gems != 0 || got.Switches != 0 {
		t.Fatalf("finish %+v, want elsewhere sentinel", got)
	}
}

func TestReaderZeroesOnTruncation(t *testing.T) {
	data := EncodeCommand(command.Run(command.NewPerformerID(1, 0), "wave", 7))
	r := NewReader(data[:4]) // cut mid-header
	r.ReadU8()
	if v := r.ReadU64(); v != 0 {
		t.Fatalf("truncated read returned %d, want 0", v)
	}
	if s := r.ReadString(); s != "" {
		t.Fatalf("truncated string %q, want empty", s)
	}
}
