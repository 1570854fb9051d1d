package tags

import (
	"fmt"
	"strings"
)

// Kind names the action a tag triggers.
type Kind string

const (
	KindQuit    Kind = "quit"
	KindCommand Kind = "command"
	KindURL     Kind = "url"
	KindAlbum   Kind = "album"
	KindYear    Kind = "year"
	KindUnknown Kind = "unknown"
)

// Action is a resolved tag instruction. The set of implementations is closed:
// Quit, RawCommand, URL, Album, Year and Unknown.
type Action interface {
	Kind() Kind
	String() string
	isAction()
}

// Quit does nothing; the lookup ends without touching the player.
type Quit struct{}

// RawCommand is a generic player command split into tokens.
type RawCommand struct {
	Tokens []string
}

// URL loads a stream or file URL as the active source.
type URL struct {
	URL string
}

// Album loads a directory below the media root.
type Album struct {
	Path string
}

// Year starts the dynamic playlist for a release year. The value is passed
// to the player untouched.
type Year struct {
	Year string
}

// Unknown is produced for any action kind the resolver does not recognize.
type Unknown struct {
	Tag        string
	RawKind    string
	Parameters string
}

func (Quit) Kind() Kind       { return KindQuit }
func (RawCommand) Kind() Kind { return KindCommand }
func (URL) Kind() Kind        { return KindURL }
func (Album) Kind() Kind      { return KindAlbum }
func (Year) Kind() Kind       { return KindYear }
func (Unknown) Kind() Kind    { return KindUnknown }

func (Quit) isAction()       {}
func (RawCommand) isAction() {}
func (URL) isAction()        {}
func (Album) isAction()      {}
func (Year) isAction()       {}
func (Unknown) isAction()    {}

func (Quit) String() string         { return "quit()" }
func (a RawCommand) String() string { return fmt.Sprintf("command(%s)", strings.Join(a.Tokens, " ")) }
func (a URL) String() string        { return fmt.Sprintf("url(%s)", a.URL) }
func (a Album) String() string      { return fmt.Sprintf("album(%s)", a.Path) }
func (a Year) String() string       { return fmt.Sprintf("year(%s)", a.Year) }
func (a Unknown) String() string    { return fmt.Sprintf("%s(%s)", a.RawKind, a.Parameters) }

// Resolve maps an entry to its Action. It never fails: unrecognized kinds
// become Unknown so the dispatcher can report them uniformly.
func Resolve(entry Entry) Action {
	switch Kind(entry.Kind) {
	case KindQuit:
		return Quit{}
	case KindCommand:
		return RawCommand{Tokens: strings.Fields(entry.Parameters)}
	case KindURL:
		return URL{URL: entry.Parameters}
	case KindAlbum:
		return Album{Path: entry.Parameters}
	case KindYear:
		return Year{Year: entry.Parameters}
	default:
		return Unknown{Tag: entry.ID, RawKind: entry.Kind, Parameters: entry.Parameters}
	}
}
