package wire

import (
	"fmt"

	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/grid"
)

// Viewer stream opcodes.
const (
	OpCommand   byte = 0x01 // one command, tagged by kind
	OpBatchDone byte = 0x02 // producer finished sending a batch
	OpReady     byte = 0x03 // viewer ready for more
	OpFinished  byte = 0x04 // terminating message: passed flag + criteria
	OpDrained   byte = 0x05 // viewer played back part of the batch
)

// CriteriaElsewhere is the sentinel meaning the success criteria are
// evaluated outside the engine.
const CriteriaElsewhere = 0xFFFF

// EncodeCommand serializes one command as an opcode-tagged payload.
func EncodeCommand(cmd command.Command) []byte {
	w := NewWriter(OpCommand)
	w.WriteU8(byte(cmd.Kind))
	w.WriteU64(uint64(cmd.Performer))

	switch cmd.Kind {
	case command.KindMove:
		w.WriteI32(cmd.Move.From.X)
		w.WriteI32(cmd.Move.From.Y)
		w.WriteI32(cmd.Move.To.X)
		w.WriteI32(cmd.Move.To.Y)
		w.WriteU8(byte(cmd.Move.Gait))
	case command.KindTurn:
		w.WriteU16(uint16(cmd.Turn.From))
		w.WriteU16(uint16(cmd.Turn.To))
		w.WriteBool(cmd.Turn.Clockwise)
	case command.KindAdd, command.KindRemove:
		w.WriteBool(cmd.Picked)
		w.WriteU16(uint16(len(cmd.Items)))
		for _, id := range cmd.Items {
			w.WriteU64(uint64(id))
		}
	case command.KindControl:
		w.WriteU8(byte(cmd.Control.Kind))
		w.WriteBool(cmd.Control.On)
	case command.KindRun:
		w.WriteString(cmd.Run.Action)
		w.WriteI32(cmd.Run.Variation)
	case command.KindFail:
		w.WriteString(cmd.Reason)
	}
	return w.Bytes()
}

// DecodeCommand parses an OpCommand payload.
func DecodeCommand(data []byte) (command.Command, error) {
	r := NewReader(data)
	if r.Opcode() != OpCommand {
		return command.Command{}, fmt.Errorf("wire: opcode 0x%02x is not a command", r.Opcode())
	}
	kind := command.Kind(r.ReadU8())
	performer := command.PerformerID(r.ReadU64())
	cmd := command.Command{Performer: performer, Kind: kind}

	switch kind {
	case command.KindMove:
		cmd.Move = command.MoveSpec{
			From: grid.Coordinate{X: r.ReadI32(), Y: r.ReadI32()},
			To:   grid.Coordinate{X: r.ReadI32(), Y: r.ReadI32()},
			Gait: command.MovementKind(r.ReadU8()),
		}
	case command.KindTurn:
		cmd.Turn = command.TurnSpec{
			From:      grid.Heading(r.ReadU16()),
			To:        grid.Heading(r.ReadU16()),
			Clockwise: r.ReadBool(),
		}
	case command.KindAdd, command.KindRemove:
		cmd.Picked = r.ReadBool()
		n := int(r.ReadU16())
		cmd.Items = make([]command.PerformerID, n)
		for i := 0; i < n; i++ {
			cmd.Items[i] = command.PerformerID(r.ReadU64())
		}
	case command.KindControl:
		cmd.Control = command.ControlSpec{
			Kind: command.ControlKind(r.ReadU8()),
			On:   r.ReadBool(),
		}
	case command.KindRun:
		cmd.Run = command.RunSpec{Action: r.ReadString(), Variation: r.ReadI32()}
	case command.KindFail:
		cmd.Reason = r.ReadString()
	default:
		return command.Command{}, fmt.Errorf("wire: unknown command kind %d", kind)
	}
	return cmd, nil
}

// EncodeBatchDone builds the "finished sending a batch" flow-control
// message.
func EncodeBatchDone(count int) []byte {
	w := NewWriter(OpBatchDone)
	w.WriteI32(int32(count))
	return w.Bytes()
}

// EncodeReady builds the "ready for more" flow-control message.
func EncodeReady() []byte {
	return NewWriter(OpReady).Bytes()
}

// EncodeDrained builds the incremental playback-progress message: the
// number of batch commands the viewer has animated since its last report.
func EncodeDrained(count int) []byte {
	w := NewWriter(OpDrained)
	w.WriteI32(int32(count))
	return w.Bytes()
}

// DecodeDrained parses an OpDrained payload.
func DecodeDrained(data []byte) (int, error) {
	r := NewReader(data)
	if r.Opcode() != OpDrained {
		return 0, fmt.Errorf("wire: opcode 0x%02x is not a drain report", r.Opcode())
	}
	return int(r.ReadI32()), nil
}

// Finish is the terminating message: the passed flag plus the success
// criteria pair, or the elsewhere sentinel.
type Finish struct {
	Passed            bool
	CriteriaElsewhere bool
	Gems              int
	Switches          int
}

func EncodeFinished(f Finish) []byte {
	w := NewWriter(OpFinished)
	w.WriteBool(f.Passed)
	if f.CriteriaElsewhere {
		w.WriteU16(CriteriaElsewhere)
		w.WriteU16(CriteriaElsewhere)
		return w.Bytes()
	}
	w.WriteU16(uint16(f.Gems))
	w.WriteU16(uint16(f.Switches))
	return w.Bytes()
}

func DecodeFinished(data []byte) (Finish, error) {
	r := NewReader(data)
	if r.Opcode() != OpFinished {
		return Finish{}, fmt.Errorf("wire: opcode 0x%02x is not a finish", r.Opcode())
	}
	f := Finish{Passed: r.ReadBool()}
	gems := r.ReadU16()
	switches := r.ReadU16()
	if gems == CriteriaElsewhere && switches == CriteriaElsewhere {
		f.CriteriaElsewhere = true
		return f, nil
	}
	f.Gems = int(gems)
	f.Switches = int(switches)
	return f, nil
}
