package host

import "github.com/openufs/ufshost/ufs"

// HookStage tells a vendor hook whether it is being called before or after
// the operation it brackets.
type HookStage int

// The two hook stages.
const (
	PreChange HookStage = iota
	PostChange
)

// VendorHooks is the variant-specific extension point. The core calls these
// synchronously at defined lifecycle points and does not depend on what the
// implementation does. All methods must be safe to call from worker
// goroutines.
type VendorHooks interface {
	// Name identifies the variant, for logs.
	Name() string

	// HibernateNotify brackets hibernate enter and exit.
	HibernateNotify(stage HookStage, enter bool) error

	// PwrChangeNotify brackets a power mode change. At PreChange the
	// implementation may adjust the desired parameters.
	PwrChangeNotify(stage HookStage, desired ufs.PowerInfo) (ufs.PowerInfo, error)

	// SetupClocks brackets clock state changes. on is the state being
	// entered.
	SetupClocks(stage HookStage, on bool) error

	// ScaleClocksNotify brackets a clock frequency scale.
	ScaleClocksNotify(stage HookStage, up bool) error

	// DeviceResetNotify is called once per full reset attempt.
	DeviceResetNotify(stage HookStage) error

	// LinkStartupNotify brackets link startup.
	LinkStartupNotify(stage HookStage) error
}

// NopHooks is a VendorHooks that does nothing. Controllers without a vendor
// variant use it.
type NopHooks struct{}

// Name returns the variant name.
func (NopHooks) Name() string { return "nop" }

// HibernateNotify does nothing.
func (NopHooks) HibernateNotify(HookStage, bool) error { return nil }

// PwrChangeNotify accepts the desired parameters unchanged.
func (NopHooks) PwrChangeNotify(_ HookStage, desired ufs.PowerInfo) (ufs.PowerInfo, error) {
	return desired, nil
}

// SetupClocks does nothing.
func (NopHooks) SetupClocks(HookStage, bool) error { return nil }

// ScaleClocksNotify does nothing.
func (NopHooks) ScaleClocksNotify(HookStage, bool) error { return nil }

// DeviceResetNotify does nothing.
func (NopHooks) DeviceResetNotify(HookStage) error { return nil }

// LinkStartupNotify does nothing.
func (NopHooks) LinkStartupNotify(HookStage) error { return nil }
