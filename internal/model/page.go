package model

// Page holds what the extractor derives from one fetched source page.
type Page struct {
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	MetaDescription string   `json:"meta_description,omitempty"`
	Text            string   `json:"text"`
	Address         string   `json:"address,omitempty"`
	Hours           string   `json:"hours,omitempty"`
	Price           string   `json:"price,omitempty"`
	Stations        []string `json:"stations,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Images          []string `json:"images,omitempty"`
}

// TextLen returns the primary text length in runes.
func (p *Page) TextLen() int {
	return len([]rune(p.Text))
}

// PracticalInfo is the page-derived practical data stored alongside an entity.
type PracticalInfo struct {
	Address  string   `json:"address,omitempty"`
	Hours    string   `json:"opening_hours,omitempty"`
	Price    string   `json:"price_info,omitempty"`
	Stations []string `json:"nearest_stations,omitempty"`
	Images   []string `json:"images,omitempty"`
}

// Practical copies the practical fields off a page, keeping at most maxImages images.
func (p *Page) Practical(maxImages int) PracticalInfo {
	images := p.Images
	if maxImages >= 0 && len(images) > maxImages {
		images = images[:maxImages]
	}
	return PracticalInfo{
		Address:  p.Address,
		Hours:    p.Hours,
		Price:    p.Price,
		Stations: p.Stations,
		Images:   images,
	}
}

// CrawledPage is a raw fetch result.
type CrawledPage struct {
	URL        string `json:"url"`
	HTML       string `json:"html,omitempty"`
	StatusCode int    `json:"status_code"`
}
