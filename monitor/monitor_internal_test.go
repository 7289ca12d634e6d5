package monitor

import (
	"encoding/json"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/gorilla/mux"

	"github.com/openufs/ufshost/host"
	"github.com/openufs/ufshost/hw/simdev"
)

func buildController(name string) *host.Controller {
	dev := simdev.MakeBuilder().Build(name + ".dev")
	c := host.MakeBuilder().WithRegisterBlock(dev).Build(name)
	dev.AttachMemory(c.Memory())
	dev.SetInterruptHandler(c)
	Expect(c.Start()).To(Succeed())
	return c
}

var _ = Describe("Monitor", func() {
	var (
		m *Monitor
		c *host.Controller
	)

	BeforeEach(func() {
		m = NewMonitor()
		c = buildController("Ctrl")
		m.RegisterController(c)
	})

	AfterEach(func() {
		c.Stop()
	})

	It("should list registered controllers", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/list_controllers", nil)

		m.listControllers(w, r)

		Expect(w.Body.String()).To(Equal(`["Ctrl"]`))
	})

	It("should report the controller state", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/controller/Ctrl/state", nil)
		r = mux.SetURLVars(r, map[string]string{"name": "Ctrl"})

		m.controllerState(w, r)

		rsp := stateRsp{}
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.DriverState).To(Equal("Operational"))
		Expect(rsp.LinkState).To(Equal("Active"))
	})

	It("should 404 on an unknown controller", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/controller/Nope/state", nil)
		r = mux.SetURLVars(r, map[string]string{"name": "Nope"})

		m.controllerState(w, r)

		Expect(w.Code).To(Equal(404))
	})

	It("should reject an unknown error category", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/controller/Ctrl/errors/bogus", nil)
		r = mux.SetURLVars(r, map[string]string{
			"name": "Ctrl", "category": "bogus",
		})

		m.errorHistory(w, r)

		Expect(w.Code).To(Equal(400))
	})
})
