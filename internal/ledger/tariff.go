package ledger

import (
	"maps"
	"slices"
	"strings"
)

// Resolve looks up the tariff of a class. The boolean is false when the class has no
// configured tariff; callers then price tuition-derived items at zero.
func (t TariffTable) Resolve(classe string) (Tariff, bool) {
	name := strings.TrimSpace(classe)
	if name == "" || len(t) == 0 {
		return Tariff{Classe: name}, false
	}
	if tariff, ok := t[name]; ok {
		tariff.Classe = name
		return tariff, true
	}
	for _, key := range slices.Sorted(maps.Keys(t)) {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			tariff := t[key]
			tariff.Classe = name
			return tariff, true
		}
	}
	return Tariff{Classe: name}, false
}
