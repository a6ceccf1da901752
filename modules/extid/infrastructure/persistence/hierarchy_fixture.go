package persistence

import (
	"io"
	"os"

	"github.com/go-faster/errors"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/pkg/constants"
)

// Fixture is the YAML layout accepted by LoadFixture:
//
//	offices:
//	  - {id: 1}
//	  - {id: 5, parent: 1, external_id: "05"}
//	groups:
//	  - {id: 10, office: 5, center: true}
//	  - {id: 11, parent: 10, office: 5}
//	clients:
//	  - {id: 100, groups: [11]}
type Fixture struct {
	Offices []hierarchy.Office `yaml:"offices" validate:"dive"`
	Groups  []hierarchy.Group  `yaml:"groups" validate:"dive"`
	Clients []hierarchy.Client `yaml:"clients" validate:"dive"`
}

func LoadFixture(r io.Reader) (*MemoryRepository, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode fixture")
	}
	return f.Repository()
}

func LoadFixtureFile(path string) (*MemoryRepository, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	repo, err := LoadFixture(fh)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return repo, nil
}

// Repository validates ids and builds a MemoryRepository from the fixture.
func (f Fixture) Repository() (*MemoryRepository, error) {
	if err := constants.Validate.Struct(f); err != nil {
		return nil, errors.Wrap(err, "invalid fixture")
	}
	repo := NewMemoryRepository()
	seen := map[hierarchy.Kind]map[int64]bool{}
	mark := func(kind hierarchy.Kind, id int64) error {
		if seen[kind] == nil {
			seen[kind] = map[int64]bool{}
		}
		if seen[kind][id] {
			return errors.Errorf("%s %d declared twice", kind, id)
		}
		seen[kind][id] = true
		return nil
	}
	for _, o := range f.Offices {
		if err := mark(hierarchy.KindOffice, o.ID); err != nil {
			return nil, err
		}
		repo.PutOffice(o)
	}
	for _, g := range f.Groups {
		// Centers and groups share one id space.
		if err := mark(hierarchy.KindGroup, g.ID); err != nil {
			return nil, err
		}
		repo.PutGroup(g)
	}
	for _, c := range f.Clients {
		if err := mark(hierarchy.KindClient, c.ID); err != nil {
			return nil, err
		}
		repo.PutClient(c)
	}
	return repo, nil
}
