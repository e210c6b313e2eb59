// Package api serves the plugin registry and a run endpoint over HTTP, so a
// plugin can be exercised without a host runtime.
package api

import (
	"encoding/json"
	"io"
	"math"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/device"
	"github.com/born-ml/selectpad/internal/engine"
	"github.com/born-ml/selectpad/internal/metrics"
	"github.com/born-ml/selectpad/internal/plugin"
	"github.com/born-ml/selectpad/internal/tensor"
	"github.com/born-ml/selectpad/internal/version"
)

// Server exposes an engine over HTTP.
type Server struct {
	engine *engine.Engine
	device device.Kind
}

// NewServer returns a server running plugins from eng on streams of kind.
func NewServer(eng *engine.Engine, kind device.Kind) *Server {
	return &Server{engine: eng, device: kind}
}

// Register adds the routes to e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/plugins", s.handleListPlugins)
	e.GET("/v1/plugins/:name/fields", s.handleFields)
	e.POST("/v1/plugins/:name/run", s.handleRun)
	e.GET("/v1/version", s.handleVersion)
	e.GET("/metrics", func(c *echo.Context) error {
		metrics.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})
}

func (s *Server) handleListPlugins(c *echo.Context) error {
	keys := s.engine.Registry().Keys()
	out := PluginList{Object: "list", Data: make([]PluginInfo, 0, len(keys))}
	for _, k := range keys {
		out.Data = append(out.Data, PluginInfo{Name: k.Name, Version: k.Version, Namespace: k.Namespace})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleFields(c *echo.Context) error {
	creator, err := s.lookup(c.Param("name"), c.QueryParam("version"), c.QueryParam("namespace"))
	if err != nil {
		return writeNotFound(c, err.Error())
	}
	schema := creator.FieldNames()
	out := FieldList{Object: "list", Data: make([]FieldInfo, 0, len(schema.Fields))}
	for _, f := range schema.Fields {
		out.Data = append(out.Data, FieldInfo{Name: f.Name, Type: f.Type.String(), Length: f.Length, Required: f.Required})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleRun(c *echo.Context) error {
	req, err := decodeJSON[RunRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "invalid JSON: "+err.Error())
	}
	if len(req.Inputs) == 0 {
		return writeBadRequest(c, "inputs must not be empty")
	}
	creator, err := s.lookup(c.Param("name"), req.Version, req.Namespace)
	if err != nil {
		return writeNotFound(c, err.Error())
	}
	attrs, err := fieldsFromJSON(creator.FieldNames(), req.Attributes)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	kind := s.device
	if req.Device != "" {
		if kind, err = device.ParseKind(req.Device); err != nil {
			return writeBadRequest(c, err.Error())
		}
	}

	descs := make([]tensor.Desc, len(req.Inputs))
	for i, in := range req.Inputs {
		if err := in.Validate(); err != nil {
			return writeBadRequest(c, errors.WithMessagef(err, "input %d", i).Error())
		}
		descs[i] = in.Desc()
	}

	spec := engine.Spec{
		Name:      creator.PluginName(),
		Version:   creator.PluginVersion(),
		Namespace: creator.PluginNamespace(),
		Attrs:     attrs,
	}
	inst, err := s.engine.Build(spec, descs)
	if err != nil {
		return writeRunError(c, err)
	}
	defer func() {
		if err := inst.Close(); err != nil {
			klog.Warningf("api: closing instance %s: %v", inst.ID, err)
		}
	}()

	stream, err := device.NewStream(kind)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	defer stream.Close()

	out, err := inst.Execute(c.Request().Context(), stream, req.Inputs)
	if err != nil {
		return writeRunError(c, err)
	}
	serialized, err := inst.Serialize()
	if err != nil {
		return writeRunError(c, err)
	}
	klog.V(1).Infof("api: run %s of %s finished", inst.ID, spec.Name)
	return c.JSON(http.StatusOK, RunResponse{
		ID:             inst.ID.String(),
		Object:         "plugin.run",
		Plugin:         spec.Name,
		Device:         kind.String(),
		Output:         out,
		WorkspaceBytes: inst.WorkspaceSize(),
		Serialized:     serialized,
	})
}

func (s *Server) handleVersion(c *echo.Context) error {
	return c.JSON(http.StatusOK, version.Resolve())
}

// lookup finds a creator by name, defaulting version and namespace to the
// first registered match.
func (s *Server) lookup(name, ver, ns string) (plugin.Creator, error) {
	if ver != "" || ns != "" {
		return s.engine.Registry().Lookup(name, ver, ns)
	}
	found := s.engine.Registry().Find(name)
	if len(found) == 0 {
		return nil, errors.Wrapf(plugin.ErrNotFound, "%s", name)
	}
	return found[0], nil
}

// fieldsFromJSON converts decoded JSON attributes into fields typed by
// schema. Numbers may be scalars or arrays.
func fieldsFromJSON(schema *plugin.FieldCollection, attrs map[string]any) (*plugin.FieldCollection, error) {
	fc := plugin.NewFieldCollection()
	for _, name := range schema.Names() {
		raw, ok := attrs[name]
		if !ok {
			continue
		}
		decl, _ := schema.Find(name)
		f, err := fieldFromJSON(decl, raw)
		if err != nil {
			return nil, err
		}
		fc.Fields = append(fc.Fields, f)
	}
	for name := range attrs {
		if _, ok := schema.Find(name); !ok {
			return nil, errors.Wrapf(plugin.ErrConfig, "unknown attribute %q", name)
		}
	}
	return fc, nil
}

func fieldFromJSON(decl plugin.Field, raw any) (plugin.Field, error) {
	if decl.Type == plugin.FieldString {
		s, ok := raw.(string)
		if !ok {
			return plugin.Field{}, errors.Wrapf(plugin.ErrConfig, "attribute %q: expected string", decl.Name)
		}
		return plugin.StringField(decl.Name, s), nil
	}

	var nums []float64
	switch v := raw.(type) {
	case float64:
		nums = []float64{v}
	case []any:
		for _, x := range v {
			n, ok := x.(float64)
			if !ok {
				return plugin.Field{}, errors.Wrapf(plugin.ErrConfig, "attribute %q: expected numbers", decl.Name)
			}
			nums = append(nums, n)
		}
	default:
		return plugin.Field{}, errors.Wrapf(plugin.ErrConfig, "attribute %q: expected a number", decl.Name)
	}

	if decl.Type == plugin.FieldInt32 {
		ints := make([]int32, len(nums))
		for i, n := range nums {
			if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
				return plugin.Field{}, errors.Wrapf(plugin.ErrConfig, "attribute %q: %v is not an int32", decl.Name, n)
			}
			ints[i] = int32(n)
		}
		return plugin.Int32Field(decl.Name, ints...), nil
	}
	floats := make([]float32, len(nums))
	for i, n := range nums {
		floats[i] = float32(n)
	}
	return plugin.Float32Field(decl.Name, floats...), nil
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
