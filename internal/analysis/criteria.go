// Package analysis produces structured coaching analyses from live
// conversation content, analyzing only new material each pass while
// retaining cross-pass context.
package analysis

// coachingCriteria are the fixed evaluation dimensions scored 1-10 on every
// analysis pass.
var coachingCriteria = map[string]string{
	"clear_vision":          "The coach invites the client towards a clear, thrilling, measurable, and potentially transformative vision.",
	"max_value":             "Coaches in a way that max value for the call is clear and the client reports max value being created towards the end of call.",
	"client_participation":  "Client participation occurs as full, exploring who they are becoming.",
	"expand_possibilities":  "The coach expands what the client believes is possible.",
	"commitments_awareness": "There is awareness and clarity of commitments, and growth process around broken commitments.",
	"powerful_questions":    "The coach's key tools are powerful questions and silence.",
	"listening_levels":      "The coach demonstrates all three levels of listening and tests their intuition when they have notices.",
	"client_ownership":      "The coach invites the client into ownership, and does not enroll in consulting or solving for the client.",
	"be_do_have":            "The coach invites the client to reinvent through the framework of Be Do Have.",
	"disrupt_beliefs":       "Coach disrupts the client's limiting beliefs, systems, or rackets and creates new actions from insights.",
	"insights_to_actions":   "The client discovers insights that lead to actions and commitments.",
	"energy_dance":          "The coach dances with energy throughout the call in direct response to what is being noticed in the client.",
}

// goLiveValues are the value lenses every suggestion is filtered through.
var goLiveValues = map[string]string{
	"growth":    "Growth: Nudging growth edge awareness and inviting transformation beyond high performance",
	"ownership": "Ownership: Inviting radical responsibility and moving beyond blame or victimhood",
	"love":      "Love: Reflecting fierce advocacy for the client's vision and highest potential",
	"integrity": "Integrity: Aligning with the client's stated commitments, values, and authentic self",
	"vision":    "Vision: Amplifying or reconnecting to a compelling, transformative future",
	"energy":    "Energy: Raising stakes, emotion, aliveness, and sense of possibility",
}

// promptCategories classify the suggestions the LLM may produce.
var promptCategories = map[string]string{
	"clarify_reflect":      "Help the coach reflect or clarify statements that may have hidden power",
	"expand_vision":        "Push the client to think bigger, longer-term, or legacy-oriented",
	"increase_ownership":   "Challenge the client to take fuller responsibility or shift from blame",
	"reveal_cost_payoff":   "Help the client weigh hidden consequences or benefits of action or inaction",
	"interrupt_loop":       "Disrupt patterns of circular logic, story, or victimhood",
	"probe_commitment":     "Test how real the client is about their intentions or change",
	"double_click_emotion": "Slow down for emotional processing or buried insights",
	"connect_go_live":      "Tie their current state to GO LIVE values explicitly",
	"spot_meta_moment":     "Highlight moments where the client is revealing patterns or breakthrough opportunities",
}
