package tmdb

import "strconv"

type MoviePage struct {
	Page         int           `json:"page"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int           `json:"total_results"`
	Results      []MovieResult `json:"results"`
}

type MovieResult struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Name        string   `json:"name"`
	ReleaseDate string   `json:"release_date"`
	VoteAverage *float64 `json:"vote_average"`
	VoteCount   *int64   `json:"vote_count"`
}

// DisplayTitle falls back to Name, then to a placeholder.
func (m MovieResult) DisplayTitle() string {
	switch {
	case m.Title != "":
		return m.Title
	case m.Name != "":
		return m.Name
	default:
		return "Unknown title"
	}
}

// Year parses the leading year of ReleaseDate ("1994-09-23").
func (m MovieResult) Year() *int {
	if len(m.ReleaseDate) < 4 {
		return nil
	}
	y, err := strconv.Atoi(m.ReleaseDate[:4])
	if err != nil {
		return nil
	}
	return &y
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type MovieDetails struct {
	ID      int64   `json:"id"`
	Runtime *int    `json:"runtime"`
	Genres  []Genre `json:"genres"`
}

func (d MovieDetails) GenreNames() []string {
	var out []string
	for _, g := range d.Genres {
		if g.Name != "" {
			out = append(out, g.Name)
		}
	}
	return out
}
