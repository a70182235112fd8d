package policy

// BuiltinPolicies returns the policies compiled into every engine.
func BuiltinPolicies() []Policy {
	return []Policy{
		resourceNamingPolicy(),
		minimumConfidencePolicy(),
		reservedVariablesPolicy(),
	}
}

// resourceNamingPolicy rejects names the platforms would refuse.
func resourceNamingPolicy() Policy {
	return Policy{
		Name:        "resource-naming",
		Description: "Resource names must be lowercase letters, digits, dots or hyphens and at most 63 characters",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Rego: `package trinity.naming

import rego.v1

deny contains violation if {
	some role, name in input.names
	lower(name) != name
	violation := {
		"message": sprintf("%s name '%s' must be lowercase", [role, name]),
		"severity": "error",
	}
}

deny contains violation if {
	some role, name in input.names
	lower(name) == name
	not regex.match("^[a-z0-9][a-z0-9.-]*$", name)
	violation := {
		"message": sprintf("%s name '%s' must start with a letter or digit and contain only letters, digits, dots and hyphens", [role, name]),
		"severity": "error",
	}
}

deny contains violation if {
	some role, name in input.names
	count(name) > 63
	violation := {
		"message": sprintf("%s name '%s' exceeds 63 characters", [role, name]),
		"severity": "error",
	}
}
`,
	}
}

func minimumConfidencePolicy() Policy {
	return Policy{
		Name:        "minimum-confidence",
		Description: "Warns when the classifier is unsure about the detected category",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package trinity.confidence

import rego.v1

warn contains msg if {
	input.mode == "single"
	input.confidence < 0.3
	msg := sprintf("classification confidence %v%% for %s is below 30%%; verify the detected category",
		[round(input.confidence * 100), input.category])
}
`,
	}
}

// reservedVariablesPolicy warns when a caller supplies a variable the
// pipeline always sets itself.
func reservedVariablesPolicy() Policy {
	return Policy{
		Name:        "reserved-variables",
		Description: "Warns when caller variables would be overridden by pipeline values",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Rego: `package trinity.variables

import rego.v1

warn contains msg if {
	input.mode == "full"
	some role, key in input.reserved
	some k in input.variable_keys[role]
	k == key
	msg := sprintf("%s is set by the pipeline on the %s platform; the supplied value is ignored", [key, role])
}
`,
	}
}
