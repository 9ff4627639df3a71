package config

// DefaultKeywords is the built-in scan keyword list, in match priority order.
func DefaultKeywords() []string {
	return []string{
		// harassment and threats
		"harass", "harassment",
		"threat", "threaten", "threatening",
		"intimidate", "intimidation",
		"bully", "bullying",
		"abuse", "abusive",
		"stalk", "stalking",
		"blackmail", "extort", "extortion",
		"coerce", "coercion",

		// doxxing and privacy
		"dox", "doxx", "doxxed", "doxxing",
		"leak", "leaks", "leaked",
		"expose", "exposed",
		"ip", "ip address", "ipv4", "ipv6",
		"home address", "house address",
		"real address",
		"phone number", "phone #", "mobile number",
		"email address", "private info",
		"personal info", "personal information",
		"ssn", "social security",
		"passport", "driver license",
		"credit card", "debit card",

		// hate speech and extremism
		"hate", "hateful",
		"slur", "slurs",
		"racist", "racism",
		"bigot", "bigotry",
		"nazi", "neo nazi",
		"fascist", "white power",
		"kkk",
		"genocide", "ethnic cleansing",
		"supremacy", "hate crime",

		// self-harm baiting
		"kys",
		"kill yourself",
		"kill urself",
		"go kill yourself",
		"go die",
		"you should die",
		"end your life",
		"unalive yourself",
		"suicide bait",
		"self harm",
		"self-harm",
		"commit suicide",

		// sexual abuse and exploitation
		"rape", "raped", "rapist",
		"sexual assault", "sexual abuse",
		"molest", "molestation",
		"pedo", "pedophile", "pedophilia",
		"groom", "groomer", "grooming",
		"child porn", "child pornography",
		"cp",
		"minor sexual",
		"underage sex",

		// violence
		"kill", "murder", "execute",
		"beat", "assault",
		"shoot", "shooting",
		"stab", "stabbing",
		"bomb", "bombing",
		"terrorist", "terrorism",
		"massacre",
		"death threat",

		// cybercrime
		"ddos", "dos attack",
		"crash server", "server crash",
		"hack", "hacking",
		"exploit", "exploiting",
		"breach", "data breach",
		"malware", "virus", "trojan",
		"rat", "keylogger",
		"phishing", "scam", "fraud",

		// scams and social engineering
		"free nitro",
		"free discord nitro",
		"steam gift",
		"steam giveaway",
		"crypto scam",
		"investment scam",
		"fake giveaway",
		"airdrop scam",
		"impersonation",
		"account recovery scam",

		// spam
		"join my server",
		"click this link",
		"limited time offer",
		"act now",
		"dm me for info",
		"dm for details",
		"too good to be true",

		// illegal content
		"illegal drugs",
		"sell drugs",
		"buy drugs",
		"cocaine",
		"heroin",
		"meth",
		"fentanyl",
		"weapons sale",
		"gun for sale",
		"unregistered weapon",
	}
}

// DefaultBlockedPatterns is the built-in list of raw blocked expressions.
// Entries are anchored on a word boundary or a concrete shape such as an
// address or file name.
func DefaultBlockedPatterns() []string {
	return []string{
		// invites and link obfuscation
		`discord(?:\s*\.\s*|\s+dot\s+)(?:gg|com/invite)\b`,
		`\bd\s+i\s+s\s+c\s+o\s+r\s+d\b`,
		`\bjoin\s+my\s+(?:discord|server)\b`,
		`\bh\s+t\s+t\s+p\b`,
		`\bdot\s+(?:com|net|org|gg)\b`,
		`\b(?:bit\.ly|tinyurl\.com|grabify\.link|iplogger\.(?:org|com))\b`,

		// scams and giveaways
		`\bfree\s*nitro\b`,
		`\bnitro\s*generator\b`,
		`\bsteam\s*(?:gift|giveaway)\s*(?:card|code)\b`,
		`\bcrypto\s*(?:giveaway|airdrop)\b`,
		`\bwallet\s*connect\b`,
		`\bdouble\s+your\s+(?:crypto|btc|eth)\b`,
		`\binvestment\s+guaranteed\b`,
		`\brisk\s*free\s+profit\b`,

		// phishing and token grabbers
		`\bverify\s+your\s+account\b`,
		`\blogin\s+to\s+continue\b`,
		`\bsend\s+(?:me\s+)?your\s+(?:token|password)\b`,
		`\btoken\s*grab(?:ber)?\b`,
		`\bgrab\s*token\b`,

		// malware
		`\b[\w-]+\.(?:exe|scr|bat|jar|msi)\b`,
		`\bpowershell\s+-(?:enc|e|encodedcommand)\b`,
		`\bkeylogger\b`,
		`\b(?:rat|remote\s*access)\s+tool\b`,

		// leaked data formats
		`\b\d{1,3}(?:\.\d{1,3}){3}\b`,
		`\b(?:[0-9a-f]{1,4}:){7}[0-9a-f]{1,4}\b`,
		`\b(?:[0-9a-f]{1,4}:){1,6}(?::[0-9a-f]{1,4}){1,6}\b`,
		`\b\d{3}-\d{2}-\d{4}\b`,
		`\b(?:\d{4}[ -]?){3}\d{4}\b`,
		`\b\d{10,15}\b`,

		// evasion
		`(\S)\1{19,}`,
		`\b(?:[a-z]\s+){5,}[a-z]\b`,
		`\b[a-z0-9]{30,}\b`,
		`[\u200B-\u200D\u2060\uFEFF]`,

		// raids
		`@everyone\b`,
		`@here\b`,
		`\braid\s+(?:this|now)\b`,
		`\bspam\s+(?:this|the)\s+chat\b`,

		// file sharing mirrors
		`\bmega\.nz\b`,
		`\bmediafire\.com\b`,
		`\banonfiles\.com\b`,

		// bypass attempts
		`\bfilter\s*evasion\b`,
		`\banti\s*ban\b`,
	}
}

// DefaultExemptLinkPatterns match embeds the platform renders inline and
// that are not counted as links or checked against blocked patterns.
func DefaultExemptLinkPatterns() []string {
	return []string{
		`https?://(?:www\.)?tenor\.com/view/\S*gif\S*`,
	}
}
