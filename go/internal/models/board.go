package models

// Board cardinality. Neither number ever changes over the lifetime of a board.
const (
	MemberCount    = 10
	SlotsPerMember = 10
	MaxRating      = 5
)

// ReactionKind defines the kind of a peer reaction on a slot.
type ReactionKind string

const (
	ReactionWantToWatch ReactionKind = "wantToWatch"
	ReactionLoveIt      ReactionKind = "loveIt"
	ReactionSeenIt      ReactionKind = "seenIt"
)

// ReactionKinds lists every reaction kind in display order.
var ReactionKinds = []ReactionKind{ReactionWantToWatch, ReactionLoveIt, ReactionSeenIt}

// Valid reports whether k is one of the three known reaction kinds.
func (k ReactionKind) Valid() bool {
	switch k {
	case ReactionWantToWatch, ReactionLoveIt, ReactionSeenIt:
		return true
	}
	return false
}

// Genre is the genre of a pick. The empty genre is allowed.
type Genre string

const (
	GenreNone        Genre = ""
	GenreDrama       Genre = "Drama"
	GenreComedy      Genre = "Comedy"
	GenreAction      Genre = "Action"
	GenreThriller    Genre = "Thriller"
	GenreSciFi       Genre = "Sci-Fi"
	GenreHorror      Genre = "Horror"
	GenreRomance     Genre = "Romance"
	GenreAnimation   Genre = "Animation"
	GenreDocumentary Genre = "Documentary"
	GenreFantasy     Genre = "Fantasy"
)

// Genres lists the selectable genres in display order.
var Genres = []Genre{
	GenreDrama, GenreComedy, GenreAction, GenreThriller, GenreSciFi,
	GenreHorror, GenreRomance, GenreAnimation, GenreDocumentary, GenreFantasy,
}

// Valid reports whether g is empty or one of the selectable genres.
func (g Genre) Valid() bool {
	if g == GenreNone {
		return true
	}
	for _, known := range Genres {
		if g == known {
			return true
		}
	}
	return false
}

// Votes holds the voter ids for each reaction kind on a slot.
// Each list behaves as a set: a member id appears at most once.
type Votes struct {
	WantToWatch []int `json:"wantToWatch"`
	LoveIt      []int `json:"loveIt"`
	SeenIt      []int `json:"seenIt"`
}

// EmptyVotes returns votes with all three kinds present and empty.
func EmptyVotes() Votes {
	return Votes{WantToWatch: []int{}, LoveIt: []int{}, SeenIt: []int{}}
}

// Voters returns the voter ids for kind, or nil for an unknown kind.
func (v Votes) Voters(kind ReactionKind) []int {
	switch kind {
	case ReactionWantToWatch:
		return v.WantToWatch
	case ReactionLoveIt:
		return v.LoveIt
	case ReactionSeenIt:
		return v.SeenIt
	}
	return nil
}

// WithVoters returns a copy of v with the voters for kind replaced.
func (v Votes) WithVoters(kind ReactionKind, voters []int) Votes {
	switch kind {
	case ReactionWantToWatch:
		v.WantToWatch = voters
	case ReactionLoveIt:
		v.LoveIt = voters
	case ReactionSeenIt:
		v.SeenIt = voters
	}
	return v
}

// Total returns the number of reactions across all kinds.
func (v Votes) Total() int {
	return len(v.WantToWatch) + len(v.LoveIt) + len(v.SeenIt)
}

// Clone returns a deep copy of v.
func (v Votes) Clone() Votes {
	return Votes{
		WantToWatch: append([]int{}, v.WantToWatch...),
		LoveIt:      append([]int{}, v.LoveIt...),
		SeenIt:      append([]int{}, v.SeenIt...),
	}
}

// Slot is one of a member's ten movie picks.
type Slot struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Genre       Genre  `json:"genre"`
	Rating      int    `json:"rating"`
	Votes       Votes  `json:"votes"`
}

// Occupied reports whether the slot holds a pick.
func (s Slot) Occupied() bool {
	return s.Title != ""
}

// EmptySlot returns the canonical unoccupied slot at position id.
func EmptySlot(id int) Slot {
	return Slot{ID: id, Votes: EmptyVotes()}
}

// Member is one of the ten fixed participants.
type Member struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Slots []Slot `json:"slots"`
}

// Board is the single shared document.
type Board struct {
	Users []Member `json:"users"`
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := &Board{Users: make([]Member, len(b.Users))}
	for i, m := range b.Users {
		slots := make([]Slot, len(m.Slots))
		for j, s := range m.Slots {
			s.Votes = s.Votes.Clone()
			slots[j] = s
		}
		m.Slots = slots
		out.Users[i] = m
	}
	return out
}

// Member returns the member with the given id.
func (b *Board) Member(id int) (*Member, bool) {
	for i := range b.Users {
		if b.Users[i].ID == id {
			return &b.Users[i], true
		}
	}
	return nil, false
}
