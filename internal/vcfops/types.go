// Package vcfops provides the REST client for the VCF Operations suite API.
package vcfops

import "fmt"

// Identifier type names the suite API attaches to VirtualMachine resources.
// The ping flag plus the three VMEntity types form the minimal identifier
// set the API requires to accept a resource update.
const (
	IdentifierPingEnabled = "isPingEnabled"
	IdentifierEntityName  = "VMEntityName"
	IdentifierObjectID    = "VMEntityObjectID"
	IdentifierVCID        = "VMEntityVCID"
)

// Adapter and resource kind of the targeted resources.
const (
	AdapterKindVMware       = "VMWARE"
	ResourceKindVirtualMach = "VirtualMachine"
)

// IdentifierType describes the type of a resource identifier entry.
type IdentifierType struct {
	Name               string `json:"name"`
	DataType           string `json:"dataType,omitempty"`
	IsPartOfUniqueness bool   `json:"isPartOfUniqueness,omitempty"`
}

// ResourceIdentifier is one typed identifier entry on a resource.
type ResourceIdentifier struct {
	IdentifierType IdentifierType `json:"identifierType"`
	Value          string         `json:"value"`
}

// ResourceKey carries the naming metadata of a resource.
type ResourceKey struct {
	Name                string               `json:"name"`
	AdapterKindKey      string               `json:"adapterKindKey"`
	ResourceKindKey     string               `json:"resourceKindKey"`
	ResourceIdentifiers []ResourceIdentifier `json:"resourceIdentifiers"`
}

// VMResource is the suite API representation of a virtual machine.
type VMResource struct {
	Identifier  string      `json:"identifier"`
	ResourceKey ResourceKey `json:"resourceKey"`
}

// resourceListResponse is the envelope of GET /api/resources.
type resourceListResponse struct {
	ResourceList []VMResource `json:"resourceList"`
}

// updateRequest is the minimal payload of PUT /api/resources.
type updateRequest struct {
	ResourceKey ResourceKey `json:"resourceKey"`
	Identifier  string      `json:"identifier"`
}

// Name returns the display name of the resource, or "Unknown" when absent.
func (vm *VMResource) Name() string {
	if vm.ResourceKey.Name == "" {
		return "Unknown"
	}
	return vm.ResourceKey.Name
}

// PingEnabledValue returns the value of the isPingEnabled identifier entry
// and whether the entry exists at all.
func (vm *VMResource) PingEnabledValue() (string, bool) {
	for _, id := range vm.ResourceKey.ResourceIdentifiers {
		if id.IdentifierType.Name == IdentifierPingEnabled {
			return id.Value, true
		}
	}
	return "", false
}

// RequiredIdentifiers extracts the identifier entries the update API needs,
// with the isPingEnabled value forced to "true". Entries of other types are
// left out of the payload entirely.
func (vm *VMResource) RequiredIdentifiers() []ResourceIdentifier {
	required := make([]ResourceIdentifier, 0, 4)
	for _, id := range vm.ResourceKey.ResourceIdentifiers {
		switch id.IdentifierType.Name {
		case IdentifierPingEnabled:
			id.Value = "true"
			required = append(required, id)
		case IdentifierEntityName, IdentifierObjectID, IdentifierVCID:
			required = append(required, id)
		}
	}
	return required
}

// Validate checks the structural fields the update API rejects when absent.
func (vm *VMResource) Validate() error {
	if vm.Identifier == "" {
		return fmt.Errorf("resource has no identifier")
	}
	if vm.ResourceKey.Name == "" {
		return fmt.Errorf("resource %s has no name", vm.Identifier)
	}
	return nil
}
