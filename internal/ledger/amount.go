package ledger

// PricedLine is one selected item with its amount.
type PricedLine struct {
	ID     ItemIdentity `json:"id"`
	Label  string       `json:"label"`
	Amount Money        `json:"amount"`
}

// PricedSubset is the result of pricing a selection of items.
type PricedSubset struct {
	Total Money        `json:"total"`
	Lines []PricedLine `json:"lines"`
	// Missing lists selected identities that are not part of the item list.
	Missing []ItemIdentity `json:"missing,omitempty"`
}

// PriceSubset sums the amounts of the selected items. Lines follow the item order, not
// the selection order, and each identity is priced once.
func PriceSubset(items []PayableItem, selection []ItemIdentity) PricedSubset {
	wanted := make(map[ItemIdentity]bool, len(selection))
	for _, id := range selection {
		wanted[id.Normalized()] = false
	}
	result := PricedSubset{Lines: make([]PricedLine, 0, len(selection))}
	for _, item := range items {
		key := item.ID.Normalized()
		priced, ok := wanted[key]
		if !ok || priced {
			continue
		}
		wanted[key] = true
		result.Lines = append(result.Lines, PricedLine{ID: item.ID, Label: item.Label, Amount: item.Amount})
		result.Total += item.Amount
	}
	for _, id := range selection {
		key := id.Normalized()
		if !wanted[key] {
			result.Missing = append(result.Missing, key)
			wanted[key] = true
		}
	}
	return result
}

// TotalObligation prices every enumerated item.
func TotalObligation(items []PayableItem) Money {
	return PriceSubset(items, identities(items)).Total
}

func identities(items []PayableItem) []ItemIdentity {
	out := make([]ItemIdentity, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func isTuition(ns Namespace) bool {
	return ns == NamespaceMonth || ns == NamespaceTranche
}
