package client

import (
	"github.com/cheerily/cheerily/db"
	"github.com/go-playground/validator/v10"
)

// listing is the envelope Reddit wraps every feed page in.
type listing struct {
	Kind string       `json:"kind"`
	Data *listingData `json:"data" validate:"required"`
}

type listingData struct {
	After    string         `json:"after"`
	Children []listingChild `json:"children" validate:"required,dive"`
}

type listingChild struct {
	Kind string `json:"kind"`
	Data *post  `json:"data" validate:"required"`
}

// post carries the fields a cheer needs; everything else in the payload is ignored.
type post struct {
	Title     string `json:"title" validate:"required"`
	URL       string `json:"url" validate:"required,url"`
	Permalink string `json:"permalink" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (p *post) toCheer() db.Cheer {
	return db.Cheer{
		URL:       p.URL,
		Title:     p.Title,
		Permalink: p.Permalink,
	}
}

func (l *listing) cheers() []db.Cheer {
	out := make([]db.Cheer, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		out = append(out, child.Data.toCheer())
	}
	return out
}
