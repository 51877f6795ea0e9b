package advisor

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/osintops/dragnet/internal/model"
)

// LoadDeadEnds reads a JSON array of model.DeadEnd from the given path.
func LoadDeadEnds(path string) ([]model.DeadEnd, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "advisor: read dead-end catalog")
	}

	var entries []model.DeadEnd
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrap(err, "advisor: unmarshal dead-end catalog")
	}
	return entries, nil
}

// LoadRoutes reads a JSON array of model.ArbitrageRoute from the given path.
func LoadRoutes(path string) ([]model.ArbitrageRoute, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "advisor: read arbitrage catalog")
	}

	var routes []model.ArbitrageRoute
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, eris.Wrap(err, "advisor: unmarshal arbitrage catalog")
	}
	return routes, nil
}

// LoadChains reads a JSON array of model.Chain from the given path.
func LoadChains(path string) ([]model.Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "advisor: read chain catalog")
	}

	var chains []model.Chain
	if err := json.Unmarshal(data, &chains); err != nil {
		return nil, eris.Wrap(err, "advisor: unmarshal chain catalog")
	}
	return chains, nil
}
