package host

import (
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/ufs"
	"github.com/openufs/ufshost/upiu"
)

// deviceInitPollBound bounds the poll for the device to clear its
// initialization flag.
const deviceInitPollBound = 500 * time.Millisecond

// execDevMgmt runs one device-management exchange on a regular transfer
// slot. It bypasses the driver state gate so the error handler can probe
// device liveness while the controller is not operational.
func (c *Controller) execDevMgmt(req upiu.Request, timeout time.Duration) (upiu.Response, error) {
	c.devMgmtMu.Lock()
	defer c.devMgmtMu.Unlock()

	if err := c.Hold(false); err != nil {
		return upiu.Response{}, err
	}
	// The gating reference is dropped by the completion path.

	cmd := &Command{
		ID:   xid.New().String(),
		Done: make(chan ufs.CommandResult, 1),
	}

	c.mu.Lock()
	if c.stopped {
		c.releaseLocked()
		c.mu.Unlock()
		return upiu.Response{}, ufs.ErrStopped
	}
	tag, ok := c.claimSlotLocked()
	if !ok {
		c.releaseLocked()
		c.mu.Unlock()
		return upiu.Response{}, fmt.Errorf("device management: no free slot: %w", ufs.ErrBusy)
	}
	req.Header.TaskTag = uint8(tag)
	c.dispatchRequestLocked(cmd, tag, req)
	c.mu.Unlock()

	select {
	case r := <-cmd.Done:
		return c.devMgmtResult(cmd, r)
	case <-time.After(timeout):
	}

	// Timed out: pull the command back from hardware, tolerating the race
	// where the completion landed meanwhile.
	c.mu.Lock()
	if c.outstanding&(1<<tag) != 0 {
		c.regs.Write(hw.RegXferClear, ^uint32(1<<tag))
		c.finishCommandLocked(tag, ufs.ResultRequeue)
	}
	c.mu.Unlock()

	select {
	case r := <-cmd.Done:
		if r == ufs.ResultOk {
			return c.devMgmtResult(cmd, r)
		}
	default:
	}
	return upiu.Response{}, fmt.Errorf("device management: %w", ufs.ErrTimeout)
}

func (c *Controller) devMgmtResult(cmd *Command, r ufs.CommandResult) (upiu.Response, error) {
	if r != ufs.ResultOk {
		return cmd.Response, fmt.Errorf("device management: result %s: %w",
			r, ufs.ErrRetry)
	}
	return cmd.Response, nil
}

// sendNop performs one NOP OUT / NOP IN exchange.
func (c *Controller) sendNop() error {
	resp, err := c.execDevMgmt(upiu.Request{
		Header: upiu.Header{Transaction: upiu.TransactionNopOut},
	}, nopOutTimeout)
	if err != nil {
		return err
	}
	if resp.Header.Transaction != upiu.TransactionNopIn {
		return fmt.Errorf("nop: unexpected transaction %#x: %w",
			resp.Header.Transaction, ufs.ErrRetry)
	}
	return nil
}

// verifyDevice checks that the device responds at the transport level,
// retrying a bounded number of times.
func (c *Controller) verifyDevice() error {
	var err error
	for i := 0; i < nopOutRetries; i++ {
		if err = c.sendNop(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("device verification: %w", err)
}

// query runs one query exchange with retries.
func (c *Controller) query(q upiu.QueryPayload) (upiu.QueryPayload, error) {
	var lastErr error
	for i := 0; i < queryRetries; i++ {
		resp, err := c.execDevMgmt(upiu.Request{
			Header: upiu.Header{Transaction: upiu.TransactionQueryReq},
			Query:  q,
		}, queryTimeout)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Query.Response != upiu.QuerySuccess {
			lastErr = fmt.Errorf("query op %#x idn %#x: device response %#x: %w",
				q.Opcode, q.Idn, resp.Query.Response, ufs.ErrRetry)
			continue
		}
		return resp.Query, nil
	}
	return upiu.QueryPayload{}, lastErr
}

func (c *Controller) readFlag(idn uint8) (bool, error) {
	out, err := c.query(upiu.QueryPayload{Opcode: upiu.QueryReadFlag, Idn: idn})
	return out.Value != 0, err
}

func (c *Controller) setFlag(idn uint8) error {
	_, err := c.query(upiu.QueryPayload{Opcode: upiu.QuerySetFlag, Idn: idn})
	return err
}

func (c *Controller) clearFlag(idn uint8) error {
	_, err := c.query(upiu.QueryPayload{Opcode: upiu.QueryClearFlag, Idn: idn})
	return err
}

// ReadAttr reads a device attribute.
func (c *Controller) ReadAttr(idn uint8) (uint32, error) {
	out, err := c.query(upiu.QueryPayload{Opcode: upiu.QueryReadAttr, Idn: idn})
	return out.Value, err
}

// WriteAttr writes a device attribute.
func (c *Controller) WriteAttr(idn uint8, value uint32) error {
	_, err := c.query(upiu.QueryPayload{
		Opcode: upiu.QueryWriteAttr, Idn: idn, Value: value})
	return err
}

// completeDeviceInit kicks the device's initialization flag and polls until
// the device clears it.
func (c *Controller) completeDeviceInit() error {
	if err := c.setFlag(upiu.FlagDeviceInit); err != nil {
		return fmt.Errorf("device init: %w", err)
	}

	deadline := time.Now().Add(deviceInitPollBound)
	for {
		set, err := c.readFlag(upiu.FlagDeviceInit)
		if err != nil {
			return fmt.Errorf("device init: %w", err)
		}
		if !set {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("device init flag stuck: %w", ufs.ErrTimeout)
		}
		time.Sleep(time.Millisecond)
	}
}

// enableBackgroundOps lets the device run background maintenance on its own.
func (c *Controller) enableBackgroundOps() error {
	c.mu.Lock()
	enabled := c.bkopsEnabled
	c.mu.Unlock()
	if enabled {
		return nil
	}

	if err := c.setFlag(upiu.FlagBkopsEnable); err != nil {
		return err
	}

	c.mu.Lock()
	c.bkopsEnabled = true
	c.mu.Unlock()
	return nil
}

// disableBackgroundOps revokes the device's permission to run background
// maintenance; the host then polls urgency via BkopsStatus.
func (c *Controller) disableBackgroundOps() error {
	c.mu.Lock()
	enabled := c.bkopsEnabled
	c.mu.Unlock()
	if !enabled {
		return nil
	}

	if err := c.clearFlag(upiu.FlagBkopsEnable); err != nil {
		return err
	}

	c.mu.Lock()
	c.bkopsEnabled = false
	c.mu.Unlock()
	return nil
}

// bkopsStatus reads the device's background-operation urgency.
func (c *Controller) bkopsStatus() (upiu.BkopsStatus, error) {
	v, err := c.ReadAttr(upiu.AttrBkopsStatus)
	return upiu.BkopsStatus(v), err
}

// urgentBkopsNeeded tells a suspend sequence whether the device wants to keep
// working before power is cut.
func (c *Controller) urgentBkopsNeeded() (bool, error) {
	status, err := c.bkopsStatus()
	if err != nil {
		return false, err
	}
	return status >= upiu.BkopsPerfImpact, nil
}

// startStopUnitCDB builds the device power mode command block.
func startStopUnitCDB(mode ufs.DevicePowerMode) [16]byte {
	var cdb [16]byte
	cdb[0] = 0x1B
	switch mode {
	case ufs.DeviceActive:
		cdb[4] = 0x1 << 4
	case ufs.DeviceSleep:
		cdb[4] = 0x2 << 4
	case ufs.DevicePowerDown:
		cdb[4] = 0x3 << 4
	}
	return cdb
}

// setDevicePowerMode moves the storage device itself between its power
// modes, independent of the link state.
func (c *Controller) setDevicePowerMode(mode ufs.DevicePowerMode) error {
	c.mu.Lock()
	if c.devicePwr == mode {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	resp, err := c.execDevMgmt(upiu.Request{
		Header: upiu.Header{
			Transaction: upiu.TransactionCommand,
			LUN:         wellKnownDeviceLUN,
		},
		CDB: startStopUnitCDB(mode),
	}, queryTimeout)
	if err != nil {
		return fmt.Errorf("device power mode %s: %w", mode, err)
	}
	if resp.Status != upiu.StatusGood {
		return fmt.Errorf("device power mode %s: status %#x: %w",
			mode, resp.Status, ufs.ErrRetry)
	}

	c.mu.Lock()
	c.devicePwr = mode
	c.mu.Unlock()

	c.record(EventPM, -1, "device "+mode.String())
	return nil
}

// DevicePowerMode returns the storage device's current power mode.
func (c *Controller) DevicePowerMode() ufs.DevicePowerMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devicePwr
}

// wellKnownDeviceLUN addresses the device-level well-known logical unit.
const wellKnownDeviceLUN uint8 = 0xD0
