package domain

// CueCount is the number of cue fragments every catalog word carries.
const CueCount = 5

type User struct {
	Id       string
	Username string
}

// CatalogRound is one word of a played game as stored in the catalog:
// the secret key and its five cue fragments in reveal order.
type CatalogRound struct {
	WordId string
	Key    string
	Cues   [CueCount]string
}
