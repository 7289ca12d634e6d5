package main

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/openufs/ufshost/evlog"
	"github.com/openufs/ufshost/host"
	"github.com/openufs/ufshost/hw"
	"github.com/openufs/ufshost/hw/simdev"
	"github.com/openufs/ufshost/monitor"
	"github.com/openufs/ufshost/ufs"
)

var runFlags = struct {
	duration     time.Duration
	workers      int
	latency      time.Duration
	gatingDelay  time.Duration
	scaling      bool
	hibernate    bool
	injectFaults bool
	pmCycle      bool
	eventDB      string
	monitorPort  int
	openBrowser  bool
}{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a workload against a simulated device.",
	RunE:  runWorkload,
}

func init() {
	f := runCmd.Flags()
	f.DurationVar(&runFlags.duration, "duration", 5*time.Second,
		"how long to run the workload")
	f.IntVar(&runFlags.workers, "workers", 8,
		"concurrent submitters")
	f.DurationVar(&runFlags.latency, "latency", 200*time.Microsecond,
		"simulated device latency")
	f.DurationVar(&runFlags.gatingDelay, "gating-delay", 150*time.Millisecond,
		"idle delay before clock gating")
	f.BoolVar(&runFlags.scaling, "scaling", true,
		"enable clock scaling")
	f.BoolVar(&runFlags.hibernate, "hibernate-on-gate", true,
		"park the link in hibernate when gating")
	f.BoolVar(&runFlags.injectFaults, "inject-faults", false,
		"inject link errors during the run")
	f.BoolVar(&runFlags.pmCycle, "pm-cycle", false,
		"run a suspend and resume cycle mid-workload")
	f.StringVar(&runFlags.eventDB, "event-db", "",
		"record events into this SQLite database (empty picks a name)")
	f.IntVar(&runFlags.monitorPort, "monitor-port", 0,
		"serve the monitoring API on this port (0 disables)")
	f.BoolVar(&runFlags.openBrowser, "open-browser", false,
		"open the monitoring page in a browser")
}

// loadEnvDefaults lets a .env file override flag defaults, so deployments
// can pin their settings without wrapper scripts.
func loadEnvDefaults() {
	_ = godotenv.Load()

	if v := os.Getenv("UFSHOST_MONITOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			runFlags.monitorPort = port
		}
	}
	if v := os.Getenv("UFSHOST_EVENT_DB"); v != "" {
		runFlags.eventDB = v
	}
}

func runWorkload(_ *cobra.Command, _ []string) error {
	loadEnvDefaults()

	dev := simdev.MakeBuilder().
		WithLatency(runFlags.latency).
		Build("Device")

	builder := host.MakeBuilder().
		WithRegisterBlock(dev).
		WithGatingDelay(runFlags.gatingDelay).
		WithHibernateOnGate(runFlags.hibernate).
		WithClockScaling(runFlags.scaling)

	var sink *evlog.Sink
	if runFlags.eventDB != "" || runFlags.monitorPort != 0 {
		rec := evlog.NewRecorder(runFlags.eventDB)
		sink = evlog.NewSink("Ctrl", rec)
		builder = builder.WithEventSink(sink)
		defer func() {
			sink.Close()
			rec.Close()
		}()
	}

	ctrl := builder.Build("Ctrl")
	dev.AttachMemory(ctrl.Memory())
	dev.SetInterruptHandler(ctrl)

	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("controller start: %w", err)
	}
	defer ctrl.Stop()

	if runFlags.monitorPort != 0 {
		m := monitor.NewMonitor().WithPortNumber(runFlags.monitorPort)
		if runFlags.openBrowser {
			m = m.WithBrowser()
		}
		m.RegisterController(ctrl)
		m.StartServer()
	}

	stats := drive(ctrl, dev)

	fmt.Printf("completed %d commands, %d busy retries, %d failures, "+
		"%d controller resets\n",
		stats.completed, stats.retried, stats.failed, ctrl.ResetCount())

	return nil
}

type workloadStats struct {
	mu        sync.Mutex
	completed int
	retried   int
	failed    int
}

// drive runs the submitter goroutines plus the optional fault and power
// management scripts until the configured duration elapses.
func drive(ctrl *host.Controller, dev *simdev.Device) *workloadStats {
	stats := &workloadStats{}
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < runFlags.workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			submitLoop(ctrl, stop, stats, seed)
		}(int64(i))
	}

	if runFlags.injectFaults {
		wg.Add(1)
		go func() {
			defer wg.Done()
			faultLoop(dev, stop)
		}()
	}

	if runFlags.pmCycle {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pmLoop(ctrl, stop)
		}()
	}

	time.Sleep(runFlags.duration)
	close(stop)
	wg.Wait()

	return stats
}

func submitLoop(
	ctrl *host.Controller,
	stop chan struct{},
	stats *workloadStats,
	seed int64,
) {
	rng := rand.New(rand.NewSource(seed))

	for {
		select {
		case <-stop:
			return
		default:
		}

		cmd := &host.Command{
			LUN:      uint8(rng.Intn(4)),
			Length:   4096,
			SlotWait: host.DefaultSlotWait,
		}
		cmd.CDB[0] = 0x28

		result, err := ctrl.Do(cmd, time.Second)

		stats.mu.Lock()
		switch {
		case err != nil:
			stats.failed++
		case result == ufs.ResultOk:
			stats.completed++
		case result.Retryable():
			stats.retried++
		default:
			stats.failed++
		}
		stats.mu.Unlock()
	}
}

func faultLoop(dev *simdev.Device, stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		switch n % 3 {
		case 0:
			dev.InjectUICError(hw.RegUICErrorDL, hw.DLNacReceived)
		case 1:
			dev.InjectFatal(hw.IrqControllerFatal)
		case 2:
			dev.BreakLink()
		}
		n++
	}
}

func pmLoop(ctrl *host.Controller, stop chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if err := ctrl.RuntimeSuspend(); err != nil {
			continue
		}
		time.Sleep(100 * time.Millisecond)
		if err := ctrl.RuntimeResume(); err != nil {
			fmt.Fprintf(os.Stderr, "resume failed: %s\n", err)
			return
		}
	}
}
