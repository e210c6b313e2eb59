package selectpad

import (
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/born-ml/selectpad/internal/plugin"
)

// Attribute names accepted by CreatePlugin.
const (
	AttrCriterion = "criterion"
	AttrMaxRows   = "max_rows"
	AttrMaxCols   = "max_cols"
	AttrThreshold = "threshold"
	AttrPadValue  = "pad_value"
)

var (
	schemaOnce sync.Once
	schema     *plugin.FieldCollection
)

// fieldSchema returns the process-wide attribute schema, built on first use.
func fieldSchema() *plugin.FieldCollection {
	schemaOnce.Do(func() {
		schema = plugin.NewFieldCollection(
			plugin.Field{Name: AttrCriterion, Type: plugin.FieldString, Required: true},
			plugin.Field{Name: AttrMaxRows, Type: plugin.FieldInt32, Length: 1},
			plugin.Field{Name: AttrMaxCols, Type: plugin.FieldInt32, Length: 1},
			plugin.Field{Name: AttrThreshold, Type: plugin.FieldFloat32, Length: 1},
			plugin.Field{Name: AttrPadValue, Type: plugin.FieldFloat32, Length: 1},
		)
	})
	return schema
}

// Creator builds select-and-pad plugins.
type Creator struct {
	namespace string
}

var _ plugin.Creator = (*Creator)(nil)

// NewCreator returns a creator in the default namespace.
func NewCreator() *Creator {
	return &Creator{namespace: DefaultNamespace}
}

func init() {
	plugin.Default().Register(NewCreator())
}

// PluginName implements plugin.Creator.
func (c *Creator) PluginName() string {
	return PluginName
}

// PluginVersion implements plugin.Creator.
func (c *Creator) PluginVersion() string {
	return PluginVersion
}

// FieldNames implements plugin.Creator.
func (c *Creator) FieldNames() *plugin.FieldCollection {
	return fieldSchema()
}

// SetPluginNamespace implements plugin.Creator. An empty namespace is ignored.
func (c *Creator) SetPluginNamespace(ns string) {
	if ns == "" {
		klog.Warningf("selectpad creator: ignoring empty plugin namespace")
		return
	}
	c.namespace = ns
}

// PluginNamespace implements plugin.Creator.
func (c *Creator) PluginNamespace() string {
	return c.namespace
}

// CreatePlugin implements plugin.Creator. max_rows and max_cols, when
// positive, fix P and Q up front; otherwise they are taken from the input
// shape during negotiation.
func (c *Creator) CreatePlugin(name string, fc *plugin.FieldCollection) (plugin.DynamicPlugin, error) {
	p, err := c.Create(name, fc)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create is CreatePlugin returning the concrete type.
func (c *Creator) Create(name string, fc *plugin.FieldCollection) (*Plugin, error) {
	if err := fieldSchema().Validate(fc); err != nil {
		return nil, errors.WithMessagef(err, "%s.CreatePlugin", PluginName)
	}

	f, _ := fc.Find(AttrCriterion)
	critName, err := f.Str()
	if err != nil {
		return nil, err
	}
	crit, ok := LookupCriterion(critName)
	if !ok {
		return nil, errors.Wrapf(plugin.ErrConfig, "unknown criterion %q (known: %v)", critName, CriterionNames())
	}

	rows, err := int32Attr(fc, AttrMaxRows)
	if err != nil {
		return nil, err
	}
	cols, err := int32Attr(fc, AttrMaxCols)
	if err != nil {
		return nil, err
	}
	threshold, err := float32Attr(fc, AttrThreshold)
	if err != nil {
		return nil, err
	}
	padValue, err := float32Attr(fc, AttrPadValue)
	if err != nil {
		return nil, err
	}

	p := newPlugin(name, crit, threshold, padValue)
	if rows > 0 {
		p.p = rows
	}
	if cols > 0 {
		p.q = cols
	}
	p.namespace = c.namespace
	klog.V(1).Infof("selectpad: created %s (criterion=%s P=%d Q=%d)", p.name, crit.Name, p.p, p.q)
	return p, nil
}

// DeserializePlugin implements plugin.Creator.
func (c *Creator) DeserializePlugin(name string, data []byte) (plugin.DynamicPlugin, error) {
	p, err := c.Deserialize(name, data)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Deserialize is DeserializePlugin returning the concrete type.
func (c *Creator) Deserialize(name string, data []byte) (*Plugin, error) {
	p, err := deserialize(name, data)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s.DeserializePlugin", PluginName)
	}
	p.namespace = c.namespace
	klog.V(1).Infof("selectpad: deserialized %s (P=%d Q=%d)", p.name, p.p, p.q)
	return p, nil
}

func int32Attr(fc *plugin.FieldCollection, name string) (int32, error) {
	f, ok := fc.Find(name)
	if !ok {
		return 0, nil
	}
	v, err := f.Int32s()
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, errors.Wrapf(plugin.ErrConfig, "attribute %q: expected 1 value, got %d", name, len(v))
	}
	if v[0] < 0 {
		return 0, errors.Wrapf(plugin.ErrConfig, "attribute %q must be non-negative, got %d", name, v[0])
	}
	return v[0], nil
}

func float32Attr(fc *plugin.FieldCollection, name string) (float32, error) {
	f, ok := fc.Find(name)
	if !ok {
		return 0, nil
	}
	v, err := f.Float32s()
	if err != nil {
		return 0, err
	}
	if len(v) != 1 {
		return 0, errors.Wrapf(plugin.ErrConfig, "attribute %q: expected 1 value, got %d", name, len(v))
	}
	return v[0], nil
}
