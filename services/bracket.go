// moltcourt-arena/services/bracket.go
package services

// Pure single-elimination bracket arithmetic. Everything here is derived from
// the entrant count alone so it can be checked without a store.

// bracketSize returns the smallest power of two >= n, minimum 2.
func bracketSize(n int) int {
	size := 2
	for size < n {
		size *= 2
	}
	return size
}

// bracketRounds returns the number of rounds a bracket of the given size
// plays (size 8 -> 3 rounds).
func bracketRounds(size int) int {
	rounds := 0
	for size > 1 {
		size /= 2
		rounds++
	}
	return rounds
}

// seedPair is one first-round matchup by seed number (1-based). SeedB == 0
// means a bye: SeedA advances without playing.
type seedPair struct {
	SeedA int
	SeedB int
}

// firstRoundPairs builds the seeded ladder for n entrants: seed i meets seed
// size+1-i, and seeds beyond n are byes, so the strongest seeds always draw
// the weakest opposition or a free pass.
func firstRoundPairs(n int) []seedPair {
	size := bracketSize(n)
	pairs := make([]seedPair, 0, size/2)
	for i := 1; i <= size/2; i++ {
		opponent := size + 1 - i
		if opponent > n {
			opponent = 0
		}
		pairs = append(pairs, seedPair{SeedA: i, SeedB: opponent})
	}
	return pairs
}

// nextMatchSlot maps a completed match to the slot its winner occupies in the
// next round: match n feeds match ceil(n/2), odd match numbers fill slot A
// and even fill slot B. Match numbers are 1-based within a round.
func nextMatchSlot(matchNumber int) (nextMatch int, slotA bool) {
	return (matchNumber + 1) / 2, matchNumber%2 == 1
}

// matchesInRound returns the number of matches played in the given 1-based
// round of a bracket of the given size.
func matchesInRound(size, round int) int {
	m := size / 2
	for r := 1; r < round; r++ {
		m /= 2
	}
	return m
}
