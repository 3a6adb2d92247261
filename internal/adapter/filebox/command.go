package filebox

import (
	"strings"
)

// Verb identifies a protocol command.
type Verb int

const (
	VerbInvalid Verb = iota
	VerbLs
	VerbCd
	VerbPwd
	VerbUpload
	VerbDownload
	VerbShowFiles
	VerbSearch
	VerbHelp
)

// verbInfo describes one verb for parsing and for the help listing.
type verbInfo struct {
	name     string
	arg      string // argument placeholder, "" when the verb takes none
	optional bool   // argument may be omitted
	help     string
}

var verbs = map[Verb]verbInfo{
	VerbLs:        {name: "ls", help: "List files and directories"},
	VerbCd:        {name: "cd", arg: "<directory>", help: "Change directory"},
	VerbPwd:       {name: "pwd", help: "Print working directory"},
	VerbUpload:    {name: "upload", arg: "<file>", help: "Upload a file to the server"},
	VerbDownload:  {name: "download", arg: "<file>", help: "Download a file from the server"},
	VerbShowFiles: {name: "showfiles", arg: "[subdir]", optional: true, help: "Show indexed files, optionally under a directory"},
	VerbSearch:    {name: "search", arg: "<file>", help: "Search for a file"},
	VerbHelp:      {name: "help", help: "Show this help message"},
}

// helpOrder is the order in which verbs are listed by help.
var helpOrder = []Verb{VerbLs, VerbCd, VerbPwd, VerbUpload, VerbDownload, VerbShowFiles, VerbSearch, VerbHelp}

var byName = func() map[string]Verb {
	m := make(map[string]Verb, len(verbs))
	for v, info := range verbs {
		m[info.name] = v
	}
	return m
}()

// String returns the wire name of the verb, or "invalid".
func (v Verb) String() string {
	if info, ok := verbs[v]; ok {
		return info.name
	}
	return "invalid"
}

// TakesArgument reports whether the verb accepts an argument.
func (v Verb) TakesArgument() bool {
	return verbs[v].arg != ""
}

// RequiresArgument reports whether the verb is unusable without an argument.
func (v Verb) RequiresArgument() bool {
	info := verbs[v]
	return info.arg != "" && !info.optional
}

// Usage returns the usage line for the verb, e.g. "Usage: cd <directory>".
func (v Verb) Usage() string {
	info, ok := verbs[v]
	if !ok {
		return ReplyInvalidCommand
	}
	if info.arg == "" {
		return ReplyUsagePrefix + info.name
	}
	return ReplyUsagePrefix + info.name + " " + info.arg
}

// Command is one parsed request line.
type Command struct {
	Verb Verb
	// Name is the verb as typed, lowercased. Kept for invalid commands.
	Name string
	// Arg is the remainder of the line after the verb, trimmed, case kept.
	Arg string
}

// ParseCommand splits a request line into verb and argument. The verb is
// matched case-insensitively against the whole first word; the argument is
// everything after the first run of whitespace, so names with spaces survive.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	name, arg := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		name, arg = line[:i], strings.TrimSpace(line[i+1:])
	}
	name = strings.ToLower(name)

	verb, ok := byName[name]
	if !ok {
		verb = VerbInvalid
	}
	return Command{Verb: verb, Name: name, Arg: arg}
}

// String renders the command back into a request line.
func (c Command) String() string {
	name := c.Name
	if c.Verb != VerbInvalid {
		name = c.Verb.String()
	}
	if c.Arg == "" {
		return name
	}
	return name + " " + c.Arg
}

// HelpLines returns the help listing sent in reply to the help verb.
func HelpLines() []string {
	lines := make([]string, 0, len(helpOrder)+1)
	lines = append(lines, "Available commands:")
	for _, v := range helpOrder {
		info := verbs[v]
		usage := info.name
		if info.arg != "" {
			usage += " " + info.arg
		}
		lines = append(lines, usage+" - "+info.help)
	}
	return lines
}
