package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/grid"
	"github.com/playgrid/server/internal/world"
)

// registerAPI installs the learner-facing globals. Movement and mutation
// calls issue commands; sensor calls read the model, which always runs ahead
// of the animation.
func (e *Engine) registerAPI() {
	fns := map[string]lua.LGFunction{
		"move_forward":        e.moveForward,
		"turn_left":           e.turnLeft,
		"turn_right":          e.turnRight,
		"collect_gem":         e.collectGem,
		"toggle_switch":       e.toggleSwitch,
		"run_animation":       e.runAnimation,
		"place_gem":           e.placeGem,
		"place_switch":        e.placeSwitch,
		"remove_item":         e.removeItem,
		"is_blocked":          e.isBlocked,
		"is_blocked_left":     e.isBlockedLeft,
		"is_blocked_right":    e.isBlockedRight,
		"is_on_gem":           e.isOnGem,
		"is_on_closed_switch": e.isOnClosedSwitch,
		"is_on_open_switch":   e.isOnOpenSwitch,
		"gems_collected":      e.gemsCollected,
	}
	for name, fn := range fns {
		e.vm.SetGlobal(name, e.vm.NewFunction(fn))
	}
}

// issue pushes one command and converts backpressure timeouts into Lua
// errors so a stalled consumer aborts the script instead of hanging it
// forever.
func (e *Engine) issue(L *lua.LState, cmd command.Command) {
	if err := e.producer.Issue(cmd); err != nil {
		L.RaiseError("command rejected: %v", err)
	}
}

// fail records a failure command and aborts the script. Authoring intent is
// fail fast: a defect surfaces at the first impossible instruction.
func (e *Engine) fail(L *lua.LState, reason string) {
	ch := e.world.Character()
	e.issue(L, command.Fail(ch, reason))
	if e.log != nil {
		e.log.Warn("script failed", zap.String("reason", reason))
	}
	L.RaiseError("%s", reason)
}

func (e *Engine) moveForward(L *lua.LState) int {
	ch := e.world.Character()
	at, heading := e.world.Pose()
	dest := grid.Advance(at, heading)
	if !e.world.Walkable(dest) {
		e.fail(L, "blocked: cannot move from "+at.String()+" to "+dest.String())
		return 0
	}
	e.issue(L, command.Move(ch, at, dest, command.MoveWalk))

	// An active portal on the destination carries the character onward.
	if portal, ok := e.world.ItemAt(dest, world.ItemPortal); ok && portal.On {
		e.issue(L, command.Move(ch, dest, portal.Pair, command.MoveTeleport))
	}
	return 0
}

func (e *Engine) turnLeft(L *lua.LState) int {
	ch := e.world.Character()
	_, heading := e.world.Pose()
	e.issue(L, command.Turn(ch, heading, false))
	return 0
}

func (e *Engine) turnRight(L *lua.LState) int {
	ch := e.world.Character()
	_, heading := e.world.Pose()
	e.issue(L, command.Turn(ch, heading, true))
	return 0
}

func (e *Engine) collectGem(L *lua.LState) int {
	ch := e.world.Character()
	at, _ := e.world.Pose()
	gem, ok := e.world.ItemAt(at, world.ItemGem)
	if !ok {
		e.fail(L, "no gem to collect at "+at.String())
		return 0
	}
	e.issue(L, command.Collect(ch, gem.ID))
	return 0
}

func (e *Engine) toggleSwitch(L *lua.LState) int {
	at, _ := e.world.Pose()
	sw, ok := e.world.ItemAt(at, world.ItemSwitch)
	if !ok {
		e.fail(L, "no switch to toggle at "+at.String())
		return 0
	}
	e.issue(L, command.Control(sw.ID, command.ControlSwitch, !sw.On))
	return 0
}

func (e *Engine) runAnimation(L *lua.LState) int {
	name := L.CheckString(1)
	variation := int32(L.OptInt(2, 0))
	e.issue(L, command.Run(e.world.Character(), name, variation))
	return 0
}

func (e *Engine) placeGem(L *lua.LState) int {
	c := grid.Coordinate{X: int32(L.CheckInt(1)), Y: int32(L.CheckInt(2))}
	id := e.world.PlaceItem(world.ItemDef{Kind: world.ItemGem, At: c})
	L.Push(lua.LNumber(id))
	return 1
}

func (e *Engine) placeSwitch(L *lua.LState) int {
	c := grid.Coordinate{X: int32(L.CheckInt(1)), Y: int32(L.CheckInt(2))}
	on := L.OptBool(3, false)
	id := e.world.PlaceItem(world.ItemDef{Kind: world.ItemSwitch, At: c, On: on})
	L.Push(lua.LNumber(id))
	return 1
}

func (e *Engine) removeItem(L *lua.LState) int {
	id := command.PerformerID(L.CheckNumber(1))
	e.world.RemoveItem(id)
	return 0
}

func (e *Engine) isBlocked(L *lua.LState) int {
	at, heading := e.world.Pose()
	L.Push(lua.LBool(!e.world.Walkable(grid.Advance(at, heading))))
	return 1
}

func (e *Engine) isBlockedLeft(L *lua.LState) int {
	at, heading := e.world.Pose()
	L.Push(lua.LBool(!e.world.Walkable(grid.Advance(at, grid.Turned(heading, false)))))
	return 1
}

func (e *Engine) isBlockedRight(L *lua.LState) int {
	at, heading := e.world.Pose()
	L.Push(lua.LBool(!e.world.Walkable(grid.Advance(at, grid.Turned(heading, true)))))
	return 1
}

func (e *Engine) isOnGem(L *lua.LState) int {
	at, _ := e.world.Pose()
	_, ok := e.world.ItemAt(at, world.ItemGem)
	L.Push(lua.LBool(ok))
	return 1
}

func (e *Engine) isOnClosedSwitch(L *lua.LState) int {
	at, _ := e.world.Pose()
	sw, ok := e.world.ItemAt(at, world.ItemSwitch)
	L.Push(lua.LBool(ok && !sw.On))
	return 1
}

func (e *Engine) isOnOpenSwitch(L *lua.LState) int {
	at, _ := e.world.Pose()
	sw, ok := e.world.ItemAt(at, world.ItemSwitch)
	L.Push(lua.LBool(ok && sw.On))
	return 1
}

func (e *Engine) gemsCollected(L *lua.LState) int {
	L.Push(lua.LNumber(e.world.GemsCollected()))
	return 1
}
