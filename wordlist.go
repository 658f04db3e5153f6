package blobvault

// phraseWords is the embedded 256-word list share phrases are drawn from.
// Words are short, common, and phonetically distinct so phrases survive
// being read aloud.
var phraseWords = [256]string{
	"acid", "acorn", "actor", "adobe", "agent", "alarm", "album", "alley",
	"amber", "anchor", "angle", "ankle", "apple", "april", "arch", "arrow",
	"aspen", "atlas", "attic", "autumn", "badge", "bagel", "banjo", "barn",
	"basil", "beach", "bear", "began", "bell", "bench", "berry", "bird",
	"bison", "blade", "blank", "blaze", "bloom", "bolt", "bonus", "book",
	"booth", "bore", "bounce", "brave", "bread", "brick", "bridge", "brook",
	"broom", "brush", "bubble", "bugle", "bunny", "butter", "cabin", "cable",
	"cactus", "camel", "camera", "canal", "candle", "canoe", "canyon", "cargo",
	"carpet", "castle", "cedar", "cello", "chair", "chalk", "charm", "cheese",
	"cherry", "chess", "chest", "chief", "chime", "claw", "clay", "cliff",
	"clock", "cloud", "clover", "cobalt", "cocoa", "coin", "comet", "coral",
	"cotton", "cover", "crane", "crater", "crayon", "creek", "cricket", "crown",
	"cycle", "daisy", "dance", "deer", "delta", "denim", "derby", "desk",
	"dome", "donkey", "dragon", "drum", "dune", "eagle", "easel", "echo",
	"elbow", "elder", "ember", "engine", "fable", "falcon", "fern", "ferry",
	"fiddle", "field", "flame", "flint", "flute", "forest", "fossil", "fox",
	"frost", "galaxy", "garden", "garlic", "gate", "gecko", "ginger", "glacier",
	"globe", "goose", "grape", "gravel", "grove", "guitar", "hammer", "harbor",
	"harp", "hawk", "hazel", "heron", "hill", "honey", "hotel", "igloo",
	"inlet", "iris", "island", "ivory", "jade", "jaguar", "jelly", "jungle",
	"juniper", "kayak", "kettle", "kiwi", "knight", "ladder", "lagoon", "lake",
	"lantern", "lark", "lemon", "lentil", "lily", "lion", "lizard", "llama",
	"lobster", "locket", "lotus", "lunar", "magnet", "mango", "maple", "marble",
	"meadow", "melon", "mesa", "mint", "mirror", "monk", "moose", "moss",
	"moth", "mural", "nickel", "night", "north", "nutmeg", "oasis", "ocean",
	"olive", "onion", "opal", "orbit", "orchid", "otter", "owl", "oyster",
	"paddle", "palm", "panda", "paper", "peach", "pearl", "pebble", "pelican",
	"pepper", "piano", "pillow", "pine", "planet", "plum", "pond", "poppy",
	"prairie", "prism", "quail", "quartz", "quill", "rabbit", "raft", "raven",
	"reef", "ridge", "river", "robin", "rocket", "saddle", "sage", "salmon",
	"sand", "satin", "seed", "shell", "silver", "sled", "spruce", "stone",
	"summit", "sun", "swan", "thorn", "tiger", "tulip", "velvet", "willow",
}
