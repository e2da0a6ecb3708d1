// Package monitoring turns a running meter simulation into a web server that
// allows inspecting and steering it.
package monitoring

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
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/metersim/engine"
	"github.com/sarchlab/metersim/sim"
	"github.com/sarchlab/metersim/timing"
)

// Monitor can turn a simulation into a server and allows external monitoring
// and controlling of the simulation.
type Monitor struct {
	clock      *timing.Clock
	simulator  *engine.Simulator
	devices    []sim.NamedDevice
	counter    *CycleCounter
	portNumber int
	idGen      sim.IDGenerator

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	routerOnce sync.Once
	router     *mux.Router
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{
		counter: NewCycleCounter(),
		idGen:   sim.NewSequentialIDGenerator(),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterClock registers the virtual clock that drives the simulation.
func (m *Monitor) RegisterClock(c *timing.Clock) {
	m.clock = c
}

// RegisterSimulator registers the simulator.
func (m *Monitor) RegisterSimulator(s *engine.Simulator) {
	m.simulator = s
}

// RegisterBridge registers the named devices of a bridge and counts its
// cycles. It must be called before the bridge starts.
func (m *Monitor) RegisterBridge(b *sim.Bridge) {
	b.AcceptHook(m.counter)

	for _, d := range b.Devices() {
		if named, ok := d.(sim.NamedDevice); ok {
			m.devices = append(m.devices, named)
		}
	}
}

// CycleStats returns the cycles counted on the registered bridges.
func (m *Monitor) CycleStats() CycleStats {
	return m.counter.Stats()
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		status: ProgressStatus{
			ID:        m.idGen.Generate(),
			Name:      name,
			StartTime: time.Now(),
			Total:     total,
		},
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Handler returns the HTTP handler serving the monitoring API.
func (m *Monitor) Handler() http.Handler {
	m.routerOnce.Do(func() {
		r := mux.NewRouter()

		r.HandleFunc("/api/now", m.now)
		r.HandleFunc("/api/pause", m.pause)
		r.HandleFunc("/api/continue", m.resume)
		r.HandleFunc("/api/speedup/{factor}", m.setSpeedup)
		r.HandleFunc("/api/time/{unix}", m.setTime)
		r.HandleFunc("/api/meter", m.meter)
		r.HandleFunc("/api/list_devices", m.listDevices)
		r.HandleFunc("/api/device/{name}", m.deviceDetails)
		r.HandleFunc("/api/field/{json}", m.fieldValue)
		r.HandleFunc("/api/notify/{name}", m.notifyDevice)
		r.HandleFunc("/api/cycles", m.cycles)
		r.HandleFunc("/api/progress", m.listProgressBars)
		r.HandleFunc("/api/resource", m.listResources)
		r.HandleFunc("/api/profile", m.collectProfile)

		m.router = r
	})

	return m.router
}

// StartServer starts the monitor as a web server and returns its address.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	go func() {
		err := http.Serve(listener, m.Handler())
		dieOnErr(err)
	}()

	return url
}

type nowRsp struct {
	Uptime  int32 `json:"uptime"`
	UTC     int64 `json:"utc"`
	Clock   int64 `json:"clock"`
	Running bool  `json:"running"`
	Speedup int   `json:"speedup"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	rsp := nowRsp{}

	if m.simulator != nil {
		rsp.Uptime = m.simulator.Uptime()
		rsp.UTC = m.simulator.TimeUTC()
	}

	if m.clock != nil {
		rsp.Clock = m.clock.Unix()
		rsp.Running = m.clock.IsRunning()
		rsp.Speedup = m.clock.Speedup()
	}

	writeJSON(w, rsp)
}

func (m *Monitor) clockOr404(w http.ResponseWriter) *timing.Clock {
	if m.clock == nil {
		http.Error(w, "No clock registered", http.StatusNotFound)
	}

	return m.clock
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	clock := m.clockOr404(w)
	if clock == nil {
		return
	}

	clock.Stop()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) resume(w http.ResponseWriter, _ *http.Request) {
	clock := m.clockOr404(w)
	if clock == nil {
		return
	}

	clock.Resume()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) setSpeedup(w http.ResponseWriter, r *http.Request) {
	clock := m.clockOr404(w)
	if clock == nil {
		return
	}

	factor, err := strconv.Atoi(mux.Vars(r)["factor"])
	if err == nil {
		err = clock.SetSpeedup(factor)
	}

	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) setTime(w http.ResponseWriter, r *http.Request) {
	clock := m.clockOr404(w)
	if clock == nil {
		return
	}

	unix, err := strconv.ParseInt(mux.Vars(r)["unix"], 10, 64)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	clock.SetTime(time.Unix(unix, 0))
	w.WriteHeader(http.StatusOK)
}

type phasorRsp struct {
	Re float64 `json:"re"`
	Im float64 `json:"im"`
}

type meterRsp struct {
	Voltage    []phasorRsp `json:"voltage"`
	Current    []phasorRsp `json:"current"`
	EnergyWh   []float64   `json:"energy_wh"`
	NextUpdate int32       `json:"next_update"`
	Providers  int         `json:"providers"`
}

func toPhasors(values [sim.NumPhases]complex128) []phasorRsp {
	phasors := make([]phasorRsp, 0, len(values))
	for _, v := range values {
		phasors = append(phasors, phasorRsp{Re: real(v), Im: imag(v)})
	}

	return phasors
}

func (m *Monitor) meter(w http.ResponseWriter, _ *http.Request) {
	if m.simulator == nil {
		http.Error(w, "No simulator registered", http.StatusNotFound)
		return
	}

	energy := m.simulator.Energy()

	writeJSON(w, meterRsp{
		Voltage:    toPhasors(m.simulator.Voltage()),
		Current:    toPhasors(m.simulator.Current()),
		EnergyWh:   energy[:],
		NextUpdate: m.simulator.NextUpdate(),
		Providers:  m.simulator.NumProviders(),
	})
}

func (m *Monitor) listDevices(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.devices))
	for _, d := range m.devices {
		names = append(names, d.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) findDeviceOr404(
	w http.ResponseWriter,
	name string,
) sim.NamedDevice {
	for _, d := range m.devices {
		if d.Name() == name {
			return d
		}
	}

	http.Error(w, "Device not found", http.StatusNotFound)

	return nil
}

func (m *Monitor) deviceDetails(w http.ResponseWriter, r *http.Request) {
	device := m.findDeviceOr404(w, mux.Vars(r)["name"])
	if device == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(device)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type fieldReq struct {
	DeviceName string `json:"device_name,omitempty"`
	FieldName  string `json:"field_name,omitempty"`
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	device := m.findDeviceOr404(w, req.DeviceName)
	if device == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(device)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) notifyDevice(w http.ResponseWriter, r *http.Request) {
	device := m.findDeviceOr404(w, mux.Vars(r)["name"])
	if device == nil {
		return
	}

	device.Notify()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) cycles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.counter.Stats())
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	rsp := make([]ProgressStatus, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		rsp = append(rsp, b.Status())
	}

	writeJSON(w, rsp)
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

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
