package host

import (
	"fmt"
	"time"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
)

// uicInflight is the single low-level command the hardware may be working
// on. done carries the generic result from the completion interrupt; pwr
// carries the controller status word for commands whose completion is also
// reported through a status bit.
type uicInflight struct {
	cmd       ufs.UICCommand
	wantPwr   bool
	completed bool
	done      chan ufs.UICResult
	pwr       chan uint32
}

type uicOpts struct {
	// wantPwr arms the second completion signal for power-affecting
	// commands.
	wantPwr bool

	// holdGate takes a clock gating reference around the command. Init,
	// recovery, and the gating works run with clocks already managed and
	// pass false.
	holdGate bool
}

type uicOutcome struct {
	result ufs.UICResult
	status uint32
}

// SendUIC issues one link-control command and waits for its completion.
// Concurrent senders serialize; the hardware never sees two commands at
// once.
func (c *Controller) SendUIC(cmd ufs.UICCommand) (ufs.UICResult, error) {
	out, err := c.execUIC(cmd, uicOpts{holdGate: true})
	return out.result, err
}

func (c *Controller) execUIC(cmd ufs.UICCommand, opts uicOpts) (uicOutcome, error) {
	if cmd.Opcode.IsPowerAffecting() {
		opts.wantPwr = true
	}

	// The gating reference is taken before the command mutex: the ungate
	// work itself issues a hibernate exit and must be able to win uicMu
	// while a sender is still waiting for the clocks.
	if opts.holdGate {
		if err := c.Hold(false); err != nil {
			return uicOutcome{}, err
		}
		defer c.Release()
	}

	c.uicMu.Lock()
	defer c.uicMu.Unlock()

	in := &uicInflight{
		cmd:  cmd,
		done: make(chan ufs.UICResult, 1),
	}
	if opts.wantPwr {
		in.wantPwr = true
		in.pwr = make(chan uint32, 1)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return uicOutcome{}, ufs.ErrStopped
	}
	if err := c.dispatchUICLocked(in); err != nil {
		c.mu.Unlock()
		return uicOutcome{}, err
	}
	c.mu.Unlock()

	c.record(EventUIC, -1, cmd.Opcode.String())

	result, err := c.awaitUICResult(in)
	if err != nil {
		return uicOutcome{}, err
	}
	if !result.Ok() {
		return uicOutcome{result: result},
			fmt.Errorf("%s: result %d: %w", cmd.Opcode, result, ufs.ErrUICFailure)
	}

	out := uicOutcome{result: result}
	if in.wantPwr {
		select {
		case st := <-in.pwr:
			out.status = st
		case <-time.After(uicCommandTimeout):
			c.clearActiveUICLocked(in)
			c.markLinkBrokenAndRecover()
			return out, fmt.Errorf("%s: power status: %w", cmd.Opcode, ufs.ErrTimeout)
		}
	}

	return out, nil
}

// dispatchUICLocked arms the completion signals and writes the command
// registers. The arguments must be visible before the command register
// write, which is what starts the hardware.
func (c *Controller) dispatchUICLocked(in *uicInflight) error {
	if c.activeUIC != nil {
		return fmt.Errorf("uic command already active: %w", ufs.ErrBusy)
	}
	c.activeUIC = in

	c.regs.Write(hw.RegUICArg1, in.cmd.Arg1)
	c.regs.Write(hw.RegUICArg2, in.cmd.Arg2)
	c.regs.Write(hw.RegUICArg3, in.cmd.Arg3)
	c.regs.Barrier()
	c.regs.Write(hw.RegUICCommand, uint32(in.cmd.Opcode))

	return nil
}

// awaitUICResult waits for the completion interrupt, tolerating the race
// where the interrupt handler delivered the result between the timeout
// firing and us taking the lock.
func (c *Controller) awaitUICResult(in *uicInflight) (ufs.UICResult, error) {
	select {
	case r := <-in.done:
		return r, nil
	case <-time.After(uicCommandTimeout):
	}

	c.mu.Lock()
	if in.completed {
		c.mu.Unlock()
		// The racing interrupt already published the result.
		return <-in.done, nil
	}
	if c.activeUIC == in {
		c.activeUIC = nil
	}
	c.mu.Unlock()

	c.markLinkBrokenAndRecover()
	return 0, fmt.Errorf("%s: %w", in.cmd.Opcode, ufs.ErrTimeout)
}

func (c *Controller) clearActiveUICLocked(in *uicInflight) {
	c.mu.Lock()
	if c.activeUIC == in {
		c.activeUIC = nil
	}
	c.mu.Unlock()
}

// uicCmdCompletionLocked handles the command-completion interrupt.
func (c *Controller) uicCmdCompletionLocked() {
	in := c.activeUIC
	if in == nil {
		return
	}

	result := ufs.UICResult(c.regs.Read(hw.RegUICArg2))
	in.completed = true

	select {
	case in.done <- result:
	default:
	}

	if !in.wantPwr {
		c.activeUIC = nil
	}
}

// uicPwrCompletionLocked handles the status-bit completion of
// power-affecting commands. The status bit may be serviced before the
// command-complete bit, so the generic result is published here as well;
// the later command-complete invocation then finds no active command.
func (c *Controller) uicPwrCompletionLocked() {
	in := c.activeUIC
	if in == nil || !in.wantPwr {
		return
	}

	in.completed = true
	select {
	case in.done <- ufs.UICResult(c.regs.Read(hw.RegUICArg2)):
	default:
	}
	select {
	case in.pwr <- c.regs.Read(hw.RegControllerStatus):
	default:
	}

	c.activeUIC = nil
}

// linkStartup brings the link up, retrying a bounded number of times.
func (c *Controller) linkStartup() error {
	if err := c.hooks.LinkStartupNotify(PreChange); err != nil {
		return err
	}

	var err error
	for i := 0; i < linkStartupRetries; i++ {
		_, err = c.execUIC(
			ufs.UICCommand{Opcode: ufs.UICDMELinkStartup}, uicOpts{})
		if err != nil {
			continue
		}
		if c.regs.Read(hw.RegControllerStatus)&hw.StatusDeviceReady == 0 {
			err = fmt.Errorf("link startup: device not ready: %w", ufs.ErrLinkBroken)
			continue
		}
		break
	}
	if err != nil {
		c.mu.Lock()
		c.linkState = ufs.LinkBroken
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.linkState = ufs.LinkActive
	c.mu.Unlock()

	return c.hooks.LinkStartupNotify(PostChange)
}

// enterHibernate parks the link. Retried because transient negotiation
// glitches on entry are common; a final failure breaks the link.
func (c *Controller) enterHibernate(holdGate bool) error {
	if err := c.hooks.HibernateNotify(PreChange, true); err != nil {
		return err
	}

	var err error
	for i := 0; i < hibernateEnterRetries; i++ {
		_, err = c.execUIC(
			ufs.UICCommand{Opcode: ufs.UICDMEHibernate},
			uicOpts{holdGate: holdGate})
		if err == nil {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("hibernate enter: %w", err)
	}

	c.mu.Lock()
	c.linkState = ufs.LinkHibernate
	c.mu.Unlock()

	return c.hooks.HibernateNotify(PostChange, true)
}

// exitHibernate wakes the link.
func (c *Controller) exitHibernate(holdGate bool) error {
	if err := c.hooks.HibernateNotify(PreChange, false); err != nil {
		return err
	}

	_, err := c.execUIC(
		ufs.UICCommand{Opcode: ufs.UICDMEHibernExit},
		uicOpts{holdGate: holdGate})
	if err != nil {
		return fmt.Errorf("hibernate exit: %w", err)
	}

	c.mu.Lock()
	c.linkState = ufs.LinkActive
	c.mu.Unlock()

	return c.hooks.HibernateNotify(PostChange, false)
}

// ChangePowerMode negotiates the given link parameters. Requesting the
// parameters that are already negotiated is a no-op that touches no
// hardware.
func (c *Controller) ChangePowerMode(desired ufs.PowerInfo) error {
	c.mu.Lock()
	if desired.Equal(c.pwrInfo) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	desired, err := c.hooks.PwrChangeNotify(PreChange, desired)
	if err != nil {
		return err
	}

	if err := c.applyPowerMode(desired, true); err != nil {
		return err
	}

	if _, err := c.hooks.PwrChangeNotify(PostChange, desired); err != nil {
		return err
	}

	c.record(EventUIC, -1, fmt.Sprintf("power mode rx=%s/g%d tx=%s/g%d",
		desired.PwrRX, desired.GearRX, desired.PwrTX, desired.GearTX))

	return nil
}

// applyPowerMode stages the attributes and triggers the mode change. The
// final set completes through the power-status signal; the verdict is in
// the controller status register.
func (c *Controller) applyPowerMode(desired ufs.PowerInfo, holdGate bool) error {
	attrs := []struct {
		attr  uint32
		value uint32
	}{
		{ufs.AttrPARxGear, uint32(desired.GearRX)},
		{ufs.AttrPATxGear, uint32(desired.GearTX)},
		{ufs.AttrPAActiveRxLanes, uint32(desired.LanesRX)},
		{ufs.AttrPAActiveTxLanes, uint32(desired.LanesTX)},
		{ufs.AttrPAHSSeries, uint32(desired.Rate)},
	}

	for _, a := range attrs {
		_, err := c.execUIC(ufs.UICCommand{
			Opcode: ufs.UICDMESet,
			Arg1:   ufs.DMEAttr(a.attr),
			Arg3:   a.value,
		}, uicOpts{holdGate: holdGate})
		if err != nil {
			return fmt.Errorf("power mode attribute %#x: %w", a.attr, err)
		}
	}

	modeWord := uint32(desired.PwrRX)<<4 | uint32(desired.PwrTX)
	out, err := c.execUIC(ufs.UICCommand{
		Opcode: ufs.UICDMESet,
		Arg1:   ufs.DMEAttr(ufs.AttrPAPwrMode),
		Arg3:   modeWord,
	}, uicOpts{wantPwr: true, holdGate: holdGate})
	if err != nil {
		return fmt.Errorf("power mode trigger: %w", err)
	}
	if !hw.PowerModeStatusOK(out.status) {
		return fmt.Errorf("power mode change rejected: %w", ufs.ErrUICFailure)
	}

	c.mu.Lock()
	c.pwrInfo = desired
	c.mu.Unlock()

	return nil
}

// markLinkBrokenAndRecover flags the link as down and schedules the error
// handler.
func (c *Controller) markLinkBrokenAndRecover() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.linkState = ufs.LinkBroken
	c.errHist[ErrLinkLost].Push(0)
	c.scheduleRecoveryLocked(true)
}
