package config

// 默认提示词，可在配置文件中覆盖
const DefaultImgPrompt = `Describe the image in detail. If it contains a chart, table or diagram, transcribe every label, number, legend entry and axis value so that no information is lost. Do not add interpretation.`

const DefaultAnswerPrompt = `You are given a market research report and a question about it.
Answer the question using only the information in the report. Be concise and give the exact figure, name or phrase from the report.
If the report does not contain the answer, reply "NOT FOUND".

<report>
{report_content}
</report>

Question: {question}`

const DefaultJudgePrompt = `You are judging whether an answer to a question about a market research report is correct.

Question: {question}
Ground truth: {ground_truth}
Answer: {answer}

The answer is correct if it states the same fact as the ground truth. Differences in wording, formatting or units that do not change the meaning are acceptable. A partially correct or hedged answer is incorrect.
Call the answer function with your step-by-step reasoning and the final judgment.`
