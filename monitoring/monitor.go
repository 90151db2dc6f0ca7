// Package monitoring serves the state of a running simulation over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"reflect"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/go-logr/logr"
	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/axifuzz/monitoring/web"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// A RunSource is a component that counts the runs it completed.
type RunSource interface {
	sim.Named
	Runs() int
}

// Monitor turns a simulation into a server that can be inspected and paused
// from a browser.
type Monitor struct {
	domain      *sim.ClockDomain
	components  []sim.Named
	buffers     []sim.Buffer
	runSources  []RunSource
	portNumber  int
	openBrowser bool
	log         logr.Logger

	server *http.Server

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{log: logr.Discard()}
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 select
// a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithBrowser makes the monitor open its page in a browser once it serves.
func (m *Monitor) WithBrowser(open bool) *Monitor {
	m.openBrowser = open
	return m
}

// WithLogger sets the logger.
func (m *Monitor) WithLogger(l logr.Logger) *Monitor {
	m.log = l
	return m
}

// RegisterDomain registers the clock domain of the simulation.
func (m *Monitor) RegisterDomain(d *sim.ClockDomain) {
	m.domain = d
}

// RegisterComponent registers a component to be inspected. Buffers that the
// component holds in its fields are registered too.
func (m *Monitor) RegisterComponent(c sim.Named) {
	m.components = append(m.components, c)

	m.registerComponentBuffers(c)

	if s, ok := c.(RunSource); ok {
		m.runSources = append(m.runSources, s)
	}
}

// RegisterBuffer registers a buffer that no component exposes as a field.
func (m *Monitor) RegisterBuffer(b sim.Buffer) {
	for _, r := range m.buffers {
		if r == b {
			return
		}
	}

	m.buffers = append(m.buffers, b)
}

func (m *Monitor) registerComponentBuffers(c any) {
	v := reflect.ValueOf(c)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return
	}

	v = v.Elem()
	bufferType := reflect.TypeOf((*sim.Buffer)(nil)).Elem()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)

		switch field.Kind() {
		case reflect.Ptr, reflect.Interface:
		default:
			continue
		}

		if !field.Type().Implements(bufferType) || field.IsNil() {
			continue
		}

		buf := reflect.NewAt(
			field.Type(),
			unsafe.Pointer(field.UnsafeAddr()),
		).Elem().Interface().(sim.Buffer)
		m.RegisterBuffer(buf)
	}
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.NewID("progress"),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the page.
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

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/buffers", m.listBuffers)
	r.HandleFunc("/api/runs", m.listRuns)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts serving in the background and returns the port.
func (m *Monitor) StartServer() (int, error) {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	if err != nil {
		return 0, fmt.Errorf("monitor: %w", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port
	url := fmt.Sprintf("http://localhost:%d", port)
	m.log.Info("Monitoring simulation", "url", url)

	m.server = &http.Server{
		Handler:           m.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error(err, "monitor stopped")
		}
	}()

	if m.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			m.log.Error(err, "cannot open browser")
		}
	}

	return port, nil
}

// StopServer stops serving.
func (m *Monitor) StopServer() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

// inspect runs fn while no simulated process runs, so that fn sees the
// components between two cycles.
func (m *Monitor) inspect(fn func()) {
	if m.domain == nil {
		fn()
		return
	}

	m.domain.Engine().Inspect(fn)
}

func (m *Monitor) domainOr503(w http.ResponseWriter) *sim.ClockDomain {
	if m.domain == nil {
		http.Error(w, "no clock domain registered", http.StatusServiceUnavailable)
	}

	return m.domain
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	if d := m.domainOr503(w); d != nil {
		d.Engine().Pause()
		w.WriteHeader(http.StatusOK)
	}
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	if d := m.domainOr503(w); d != nil {
		d.Engine().Continue()
		w.WriteHeader(http.StatusOK)
	}
}

type nowRsp struct {
	Cycle   uint64  `json:"cycle"`
	Seconds float64 `json:"seconds"`
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	d := m.domainOr503(w)
	if d == nil {
		return
	}

	now := d.Engine().CurrentTime()
	m.writeJSON(w, nowRsp{
		Cycle:   uint64(now),
		Seconds: d.Freq().Seconds(now),
	})
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	m.writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	var (
		buf bytes.Buffer
		err error
	)

	m.inspect(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(component)
		serializer.SetMaxDepth(1)
		err = serializer.Serialize(&buf)
	})

	if err != nil {
		m.log.Error(err, "serializing component", "component", name)
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	m.write(w, buf.Bytes())
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	var (
		buf       bytes.Buffer
		walkErr   error
		serialErr error
	)

	m.inspect(func() {
		if _, walkErr = walkFields(component, req.FieldName); walkErr != nil {
			return
		}

		serializer := goseth.NewSerializer()
		serializer.SetRoot(component)
		serializer.SetMaxDepth(1)

		walkErr = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
		if walkErr != nil {
			return
		}

		serialErr = serializer.Serialize(&buf)
	})

	if walkErr != nil {
		http.Error(w, walkErr.Error(), http.StatusBadRequest)
		return
	}

	if serialErr != nil {
		m.log.Error(serialErr, "serializing field", "field", req.FieldName)
		http.Error(w, serialErr.Error(), http.StatusInternalServerError)

		return
	}

	m.write(w, buf.Bytes())
}

type bufferRsp struct {
	Buffer    string `json:"buffer"`
	Level     int    `json:"level"`
	Cap       int    `json:"cap"`
	HighWater int    `json:"high_water"`
}

func (m *Monitor) listBuffers(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := buffersParseParams(r)
	if err != nil {
		http.Error(w, "Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	var rsp []bufferRsp

	m.inspect(func() {
		selected := m.sortAndSelectBuffers(sortMethod, limit, offset)

		rsp = make([]bufferRsp, 0, len(selected))
		for _, b := range selected {
			rsp = append(rsp, bufferRsp{
				Buffer:    b.Name(),
				Level:     b.Size(),
				Cap:       b.Capacity(),
				HighWater: b.HighWater(),
			})
		}
	})

	m.writeJSON(w, rsp)
}

func buffersParseParams(
	r *http.Request,
) (sortMethod string, limit, offset int, err error) {
	sortMethod = r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "percent"
	}

	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
	}

	limit, err = queryInt(r, "limit")
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offset, err = queryInt(r, "offset")
	if err != nil {
		return sortMethod, limit, 0, err
	}

	if limit < 0 || offset < 0 {
		return sortMethod, limit, offset,
			errors.New("limit and offset must not be negative")
	}

	return sortMethod, limit, offset, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}

	return strconv.Atoi(s)
}

func bufferPercent(b sim.Buffer) float64 {
	return float64(b.Size()) / float64(b.Capacity())
}

// sortAndSelectBuffers orders the buffers, fullest first. A limit of 0 means
// no limit.
func (m *Monitor) sortAndSelectBuffers(
	sortMethod string,
	limit, offset int,
) []sim.Buffer {
	sorted := make([]sim.Buffer, len(m.buffers))
	copy(sorted, m.buffers)

	byLevel := func(i, j int) (bool, bool) {
		si, sj := sorted[i].Size(), sorted[j].Size()
		return si > sj, si != sj
	}
	byPercent := func(i, j int) (bool, bool) {
		pi, pj := bufferPercent(sorted[i]), bufferPercent(sorted[j])
		return pi > pj, pi != pj
	}

	first, second := byPercent, byLevel
	if sortMethod == "level" {
		first, second = byLevel, byPercent
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		if less, decided := first(i, j); decided {
			return less
		}

		less, _ := second(i, j)

		return less
	})

	if offset >= len(sorted) {
		return nil
	}
	sorted = sorted[offset:]

	if limit > 0 && limit < len(sorted) {
		sorted = sorted[:limit]
	}

	return sorted
}

type runsRsp struct {
	Name string `json:"name"`
	Runs int    `json:"runs"`
}

func (m *Monitor) listRuns(w http.ResponseWriter, _ *http.Request) {
	rsp := make([]runsRsp, 0, len(m.runSources))

	m.inspect(func() {
		for _, s := range m.runSources {
			rsp = append(rsp, runsRsp{Name: s.Name(), Runs: s.Runs()})
		}
	})

	m.writeJSON(w, rsp)
}

type fieldFormatError struct {
	field string
}

func (e fieldFormatError) Error() string {
	return "cannot walk into field " + e.field
}

func walkFields(comp any, fields string) (reflect.Value, error) {
	elem := reflect.ValueOf(comp)

	fieldNames := strings.Split(fields, ".")

	for len(fieldNames) > 0 {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface:
			elem = elem.Elem()
		case reflect.Struct:
			elem = elem.FieldByName(fieldNames[0])
			if !elem.IsValid() {
				return elem, fieldFormatError{field: fieldNames[0]}
			}
			fieldNames = fieldNames[1:]
		case reflect.Slice:
			index, err := strconv.Atoi(fieldNames[0])
			if err != nil || index < 0 || index >= elem.Len() {
				return elem, fieldFormatError{field: fieldNames[0]}
			}

			elem = elem.Index(index)
			fieldNames = fieldNames[1:]
		default:
			return elem, fieldFormatError{field: fieldNames[0]}
		}
	}

	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	return elem, nil
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) sim.Named {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	http.Error(w, "Component not found", http.StatusNotFound)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressBarSnapshot, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	m.writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.write(w, data)
}

func (m *Monitor) write(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")

	if _, err := w.Write(data); err != nil {
		m.log.V(1).Info("monitor client went away", "error", err.Error())
	}
}
