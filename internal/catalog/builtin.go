package catalog

// Default returns the built-in evaluation tasks. The slice is freshly
// allocated on each call.
func Default() []Task {
	return []Task{
		{
			Name:     "complete_function",
			Category: "code_completion",
			Prompt: "Complete this Kotlin function that calculates factorial:\n\n" +
				"```kotlin\nfun factorial(n: Int): Long {\n    // TODO: implement\n```\n\n" +
				"Return only the completed function.",
			Expected:       []string{"if", "return", "factorial", "*"},
			ContextSize:    50,
			IdealMaxTokens: 150,
		},
		{
			Name:     "complete_list_filter",
			Category: "code_completion",
			Prompt: "Complete this Python function:\n\n" +
				"```python\ndef filter_even_numbers(numbers: list[int]) -> list[int]:\n" +
				"    \"\"\"Return only even numbers from the list.\"\"\"\n```\n\n" +
				"Return only the completed function.",
			Expected:       []string{"return", "%", "2", "for", "if"},
			ContextSize:    40,
			IdealMaxTokens: 100,
		},
		{
			Name:     "fix_off_by_one",
			Category: "code_fix",
			Prompt: "Fix the bug in this code:\n\n" +
				"```python\ndef get_last_element(arr):\n    return arr[len(arr)]  # IndexError!\n```\n\n" +
				"Explain the bug and provide the fix.",
			Expected:       []string{"len(arr) - 1", "-1"},
			ContextSize:    40,
			IdealMaxTokens: 150,
		},
		{
			Name:     "fix_null_check",
			Category: "code_fix",
			Prompt: "Fix the NullPointerException in this Kotlin code:\n\n" +
				"```kotlin\nfun getUserName(user: User?): String {\n    return user.name.uppercase()\n}\n```\n\n" +
				"Provide the corrected code.",
			Expected:       []string{"?.", "?:", "null", "let"},
			ContextSize:    50,
			IdealMaxTokens: 150,
		},
		{
			Name:     "explain_recursion",
			Category: "explanation",
			Prompt: "Explain what this code does in 2-3 sentences:\n\n" +
				"```python\ndef mystery(n):\n    if n <= 1:\n        return n\n" +
				"    return mystery(n-1) + mystery(n-2)\n```",
			Expected:       []string{"fibonacci", "recursive"},
			ContextSize:    50,
			IdealMaxTokens: 100,
		},
		{
			Name:     "math_word_problem",
			Category: "reasoning",
			Prompt: "A store sells apples for $2 each. If you buy 5 or more, you get 20% off the total.\n" +
				"How much do 7 apples cost? Show your calculation.",
			Expected:       []string{"14", "11.2", "0.8", "20%"},
			ContextSize:    50,
			IdealMaxTokens: 150,
		},
		{
			Name:     "logic_puzzle",
			Category: "reasoning",
			Prompt: "If all Bloops are Razzies, and all Razzies are Lazzies, are all Bloops Lazzies?\n" +
				"Answer yes or no and explain why in one sentence.",
			Expected:       []string{"yes", "Yes", "YES"},
			ContextSize:    40,
			IdealMaxTokens: 80,
		},
		{
			Name:     "json_extraction",
			Category: "structured",
			Prompt: "Extract the following into valid JSON with keys \"name\", \"age\", \"city\":\n\n" +
				"\"John Smith is 32 years old and lives in Tokyo.\"\n\n" +
				"Return ONLY the JSON object, no explanation.",
			Expected:       []string{`"name"`, `"age"`, `"city"`, "John", "32", "Tokyo"},
			ContextSize:    50,
			IdealMaxTokens: 80,
		},
		{
			Name:           "summarize_code",
			Category:       "context",
			Prompt:         summarizeCodePrompt,
			Expected:       []string{"repository", "conversation", "database", "message"},
			ContextSize:    250,
			IdealMaxTokens: 100,
		},
	}
}

const summarizeCodePrompt = "Summarize what this code does in one sentence:\n\n```kotlin\n" +
	`class ConversationRepository(
    private val localDataSource: ConversationLocalDataSource,
    private val llmService: LLMService
) {
    suspend fun getConversations(): List<ConversationInfo> {
        return localDataSource.getConversations()
    }

    suspend fun getConversation(id: Long): Conversation? {
        return localDataSource.getConversation(id)
    }

    suspend fun createConversation(name: String): Long {
        return localDataSource.createConversation(name)
    }

    suspend fun deleteConversation(id: Long) {
        localDataSource.deleteConversation(id)
    }

    suspend fun sendMessage(
        conversationId: Long,
        message: String,
        model: LLMModel
    ): Flow<String> {
        val conversation = getConversation(conversationId)
            ?: throw IllegalStateException("Conversation not found")
        return llmService.chat(conversation.messages + UserMessage(message), model)
    }
}
` + "```"
