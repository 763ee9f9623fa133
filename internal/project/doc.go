// Package project reads the metadata of SOAP/WSDL test project files.
//
// Project files are XML documents rooted at a soapui-project element. This
// package only reads what the driver needs to describe and size a project:
// its declared id, name and description, its project properties in document
// order, and the suite → case → step outline. Elements are matched by local
// name so the usual "con:" namespace prefix is optional. Nothing is executed.
package project
