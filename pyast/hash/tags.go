package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the module hashing serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones invalidates
// every cached build.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// Node type tags. Each tag uniquely identifies a node kind in the serialized
// byte stream.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved
	TagAbsent       byte = 0x01 // nil optional child

	// Constants
	TagNone   byte = 0x02
	TagBool   byte = 0x03
	TagInt    byte = 0x04
	TagFloat  byte = 0x05
	TagString byte = 0x06
	TagBytes  byte = 0x07

	// Expressions
	TagName          byte = 0x10
	TagBinOp         byte = 0x11
	TagUnaryOp       byte = 0x12
	TagBoolOp        byte = 0x13
	TagCompare       byte = 0x14
	TagCall          byte = 0x15
	TagKeyword       byte = 0x16
	TagAttribute     byte = 0x17
	TagSubscript     byte = 0x18
	TagSlice         byte = 0x19
	TagList          byte = 0x1A
	TagTuple         byte = 0x1B
	TagSet           byte = 0x1C
	TagDict          byte = 0x1D
	TagListComp      byte = 0x1E
	TagSetComp       byte = 0x1F
	TagGeneratorExp  byte = 0x20
	TagDictComp      byte = 0x21
	TagComprehension byte = 0x22
	TagJoinedStr     byte = 0x23
	TagFormatted     byte = 0x24
	TagIfExp         byte = 0x25
	TagLambda        byte = 0x26
	TagAwait         byte = 0x27
	TagNamedExpr     byte = 0x28
	TagStarred       byte = 0x29

	// Statements
	TagModule      byte = 0x40
	TagFunctionDef byte = 0x41
	TagClassDef    byte = 0x42
	TagReturn      byte = 0x43
	TagAssign      byte = 0x44
	TagAugAssign   byte = 0x45
	TagAnnAssign   byte = 0x46
	TagFor         byte = 0x47
	TagWhile       byte = 0x48
	TagIf          byte = 0x49
	TagTry         byte = 0x4A
	TagHandler     byte = 0x4B
	TagRaise       byte = 0x4C
	TagAssert      byte = 0x4D
	TagWith        byte = 0x4E
	TagExprStmt    byte = 0x4F
	TagPass        byte = 0x50
	TagBreak       byte = 0x51
	TagContinue    byte = 0x52
	TagImport      byte = 0x53
	TagImportFrom  byte = 0x54
	TagGlobal      byte = 0x55
	TagMatch       byte = 0x56
	TagArguments   byte = 0x57

	// Patterns
	TagMatchValue     byte = 0x60
	TagMatchSingleton byte = 0x61
	TagMatchAs        byte = 0x62
	TagMatchOr        byte = 0x63

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero, TagAbsent,
	TagNone, TagBool, TagInt, TagFloat, TagString, TagBytes,
	TagName, TagBinOp, TagUnaryOp, TagBoolOp, TagCompare, TagCall, TagKeyword,
	TagAttribute, TagSubscript, TagSlice, TagList, TagTuple, TagSet, TagDict,
	TagListComp, TagSetComp, TagGeneratorExp, TagDictComp, TagComprehension,
	TagJoinedStr, TagFormatted, TagIfExp, TagLambda, TagAwait, TagNamedExpr,
	TagStarred,
	TagModule, TagFunctionDef, TagClassDef, TagReturn, TagAssign, TagAugAssign,
	TagAnnAssign, TagFor, TagWhile, TagIf, TagTry, TagHandler, TagRaise,
	TagAssert, TagWith, TagExprStmt, TagPass, TagBreak, TagContinue, TagImport,
	TagImportFrom, TagGlobal, TagMatch, TagArguments,
	TagMatchValue, TagMatchSingleton, TagMatchAs, TagMatchOr,
}
