package provider

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeffwilliams/hexcore/internal/region"
)

const TypeView = "hexcore.provider.view"

// View is a backend showing a region of another provider. Reads and writes go through the parent,
// so writes land in the parent's overlay. Saving a view commits its overlay to the parent's.
type View struct {
	parent   *Provider
	parentID uint64
	region   region.Region
	resolve  func(id uint64) (*Provider, bool)
}

func NewView(parent *Provider, r region.Region) *View {
	return &View{parent: parent, parentID: parent.ID(), region: r}
}

func (v *View) Open() error {
	if v.parent == nil && v.resolve != nil {
		v.parent, _ = v.resolve(v.parentID)
	}
	if v.parent == nil {
		return fmt.Errorf("view of provider %d: %w", v.parentID, ErrNotOpen)
	}
	if !v.parent.Region().ContainsRegion(v.region) {
		return fmt.Errorf("%w: view %s is outside provider %s", ErrOutOfBounds, v.region, v.parent.Name())
	}
	return nil
}

func (v *View) Close() error { return nil }

func (v *View) Size() uint64 {
	return v.region.Size
}

func (v *View) Capabilities() Capabilities {
	c := Readable
	if v.parent != nil && v.parent.Capabilities().Has(Writable) {
		c |= Writable | Savable
	}
	return c
}

func (v *View) TypeName() string { return TypeView }

func (v *View) Name() string {
	name := "?"
	if v.parent != nil {
		name = v.parent.Name()
	}
	return fmt.Sprintf("%s %s", name, v.region)
}

func (v *View) Parent() *Provider {
	return v.parent
}

func (v *View) ReadAt(b []byte, off int64) (int, error) {
	if uint64(off) >= v.region.Size {
		return 0, io.EOF
	}
	want := min(uint64(len(b)), v.region.Size-uint64(off))
	n, err := v.parent.Read(v.region.Address+uint64(off), b[:want])
	if err == nil && want < uint64(len(b)) {
		err = io.EOF
	}
	return n, err
}

func (v *View) WriteAt(b []byte, off int64) (int, error) {
	if uint64(off)+uint64(len(b)) > v.region.Size {
		return 0, fmt.Errorf("%w: write past the end of view %s", ErrOutOfBounds, v.region)
	}
	err := v.parent.Write(v.region.Address+uint64(off), b)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Resolver is implemented by backends that refer to other providers by id.
type Resolver interface {
	SetResolver(fn func(id uint64) (*Provider, bool))
}

func (v *View) SetResolver(fn func(id uint64) (*Provider, bool)) {
	v.resolve = fn
}

type viewConfig struct {
	Parent uint64        `json:"parent"`
	Region region.Region `json:"region"`
}

func (v *View) MarshalConfig() ([]byte, error) {
	return json.Marshal(viewConfig{Parent: v.parentID, Region: v.region})
}

func (v *View) UnmarshalConfig(data []byte) error {
	var c viewConfig
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}
	v.parent, v.parentID, v.region = nil, c.Parent, c.Region
	return nil
}
