package expand

// defaultThesaurus is a small general-domain synonym table. Entries map a
// lower-cased content word to substitutes tried in order. It is intentionally
// compact: expansion is a recall widener, not a linguistic resource, and a
// missing entry simply leaves the word unchanged.
var defaultThesaurus = map[string][]string{
	"fast":      {"quick", "rapid", "speedy"},
	"quick":     {"fast", "rapid"},
	"slow":      {"sluggish", "gradual"},
	"big":       {"large", "huge"},
	"large":     {"big", "sizable"},
	"small":     {"little", "tiny"},
	"car":       {"automobile", "vehicle"},
	"auto":      {"car", "automobile"},
	"buy":       {"purchase", "acquire"},
	"sell":      {"vend", "trade"},
	"cheap":     {"inexpensive", "affordable"},
	"expensive": {"costly", "pricey"},
	"begin":     {"start", "commence"},
	"start":     {"begin", "launch"},
	"end":       {"finish", "conclude"},
	"stop":      {"halt", "cease"},
	"make":      {"build", "create"},
	"build":     {"construct", "assemble"},
	"fix":       {"repair", "mend"},
	"broken":    {"damaged", "faulty"},
	"error":     {"failure", "fault"},
	"problem":   {"issue", "trouble"},
	"help":      {"assist", "aid"},
	"show":      {"display", "present"},
	"find":      {"locate", "discover"},
	"search":    {"find", "look up"},
	"use":       {"utilize", "employ"},
	"new":       {"recent", "modern"},
	"old":       {"outdated", "aged"},
	"good":      {"great", "excellent"},
	"bad":       {"poor", "faulty"},
	"important": {"significant", "critical"},
	"easy":      {"simple", "straightforward"},
	"hard":      {"difficult", "tough"},
	"change":    {"modify", "alter"},
	"remove":    {"delete", "eliminate"},
	"add":       {"insert", "include"},
	"safe":      {"secure", "protected"},
	"price":     {"cost", "rate"},
	"house":     {"home", "residence"},
	"job":       {"work", "position"},
	"company":   {"business", "firm"},
	"doctor":    {"physician", "practitioner"},
	"illness":   {"disease", "sickness"},
	"money":     {"funds", "cash"},
	"food":      {"meal", "cuisine"},
	"trip":      {"journey", "travel"},
	"picture":   {"image", "photo"},
	"movie":     {"film", "motion picture"},
	"book":      {"volume", "publication"},
	"learn":     {"study", "understand"},
	"teach":     {"instruct", "educate"},
	"answer":    {"response", "reply"},
	"question":  {"query", "inquiry"},
}
