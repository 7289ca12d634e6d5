// Package monitor turns a set of controllers into a small web server for
// live inspection: driver and link state, error history, event-loop load,
// and on-demand CPU profiles.
package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/openufs/ufshost/host"
)

// Monitor serves the state of registered controllers over HTTP.
type Monitor struct {
	controllers []*host.Controller
	portNumber  int
	openBrowser bool
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes StartServer open the served address in a browser.
func (m *Monitor) WithBrowser() *Monitor {
	m.openBrowser = true
	return m
}

// RegisterController registers a controller to be monitored.
func (m *Monitor) RegisterController(c *host.Controller) {
	m.controllers = append(m.controllers, c)
}

// StartServer starts the monitor as a web server with a custom port if
// wanted.
func (m *Monitor) StartServer() {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_controllers", m.listControllers)
	r.HandleFunc("/api/controller/{name}", m.controllerDetails)
	r.HandleFunc("/api/controller/{name}/state", m.controllerState)
	r.HandleFunc("/api/controller/{name}/errors/{category}", m.errorHistory)
	r.HandleFunc("/api/controller/{name}/suspend", m.suspend)
	r.HandleFunc("/api/controller/{name}/resume", m.resume)
	r.HandleFunc("/api/controller/{name}/reset", m.reset)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	http.Handle("/", r)

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring controllers with %s\n", url)

	if m.openBrowser {
		_ = browser.OpenURL(url)
	}

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

func (m *Monitor) listControllers(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, "[")
	for i, c := range m.controllers {
		if i > 0 {
			fmt.Fprint(w, ",")
		}

		fmt.Fprintf(w, "%q", c.Name())
	}
	fmt.Fprint(w, "]")
}

func (m *Monitor) controllerDetails(w http.ResponseWriter, r *http.Request) {
	c := m.findControllerOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(c)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type stateRsp struct {
	DriverState string `json:"driver_state"`
	LinkState   string `json:"link_state"`
	GateState   string `json:"gate_state"`
	DevicePower string `json:"device_power"`
	Outstanding uint32 `json:"outstanding"`
	ResetCount  int    `json:"reset_count"`
	GearRX      int    `json:"gear_rx"`
	GearTX      int    `json:"gear_tx"`
}

func (m *Monitor) controllerState(w http.ResponseWriter, r *http.Request) {
	c := m.findControllerOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	pwr := c.PowerInfo()
	rsp := stateRsp{
		DriverState: c.DriverState().String(),
		LinkState:   c.LinkState().String(),
		GateState:   c.GateState().String(),
		DevicePower: c.DevicePowerMode().String(),
		Outstanding: c.Outstanding(),
		ResetCount:  c.ResetCount(),
		GearRX:      int(pwr.GearRX),
		GearTX:      int(pwr.GearTX),
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

var errorCategories = map[string]host.ErrorCategory{
	"phy":       host.ErrPhy,
	"datalink":  host.ErrDataLink,
	"network":   host.ErrNetwork,
	"transport": host.ErrTransport,
	"dme":       host.ErrDME,
	"fatal":     host.ErrFatal,
	"linklost":  host.ErrLinkLost,
}

func (m *Monitor) errorHistory(w http.ResponseWriter, r *http.Request) {
	c := m.findControllerOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	cat, ok := errorCategories[mux.Vars(r)["category"]]
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Unknown error category")
		return
	}

	bytes, err := json.Marshal(c.ErrorHistory(cat))
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) suspend(w http.ResponseWriter, r *http.Request) {
	c := m.findControllerOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	if err := c.RuntimeSuspend(); err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) resume(w http.ResponseWriter, r *http.Request) {
	c := m.findControllerOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	if err := c.RuntimeResume(); err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) reset(w http.ResponseWriter, r *http.Request) {
	c := m.findControllerOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	go func() {
		if err := c.HostReset(); err != nil {
			log.Printf("host reset: %s", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (m *Monitor) findControllerOr404(
	w http.ResponseWriter,
	name string,
) *host.Controller {
	var controller *host.Controller
	for _, c := range m.controllers {
		if c.Name() == name {
			controller = c
		}
	}

	if controller == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Controller not found"))
		dieOnErr(err)
	}

	return controller
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	rsp := resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	}

	bytes, err := json.Marshal(rsp)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	bytes, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
